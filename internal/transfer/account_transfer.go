package transfer

type AccountCreation struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AccountUpdate struct {
	Password string `json:"password"`
	Status   string `json:"status"`
}
