package backend

// User is the account object returned by the auth endpoints.
type User struct {
	ID            string  `json:"id"`
	Username      string  `json:"username"`
	Email         string  `json:"email,omitempty"`
	WalletBalance float64 `json:"wallet_balance"`
}

// GuestUser is the synthetic identity handed out by GET /api/auth/guest.
type GuestUser struct {
	ID            string  `json:"id"`
	Username      string  `json:"username"`
	WalletBalance float64 `json:"wallet_balance"`
}

// StatusResponse is the body of GET /api/auth/status.
type StatusResponse struct {
	Authenticated bool       `json:"authenticated"`
	User          *User      `json:"user,omitempty"`
	GuestMode     bool       `json:"guest_mode,omitempty"`
	GuestUser     *GuestUser `json:"guest_user,omitempty"`
}

// AuthResponse is the body of the login, register, and refresh endpoints.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	User        *User  `json:"user,omitempty"`
}

// BalanceData is the data payload of the balance and sync endpoints.
type BalanceData struct {
	Balance    float64 `json:"balance"`
	IsDemoMode bool    `json:"is_demo_mode,omitempty"`
}

// SyncAction selects the direction of POST /api/gaming/roulette/sync_balance.
type SyncAction string

const (
	// SyncRestore asks the server for its balance of record.
	SyncRestore SyncAction = "restore"
	// SyncSave pushes the client's balance to the server.
	SyncSave SyncAction = "save"
)

type guestResponse struct {
	GuestUser GuestUser `json:"guest_user"`
}

type balanceEnvelope struct {
	Status string       `json:"status"`
	Data   *BalanceData `json:"data,omitempty"`
}

type statusOnly struct {
	Status string `json:"status"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateBalanceRequest struct {
	Balance float64 `json:"balance"`
}

type syncBalanceRequest struct {
	Action          SyncAction `json:"action"`
	FrontendBalance *float64   `json:"frontend_balance,omitempty"`
}
