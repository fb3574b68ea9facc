package model

// Account はアカウント管理側が保持するアカウント情報を表す。
type Account struct {
	DID         string
	Email       string
	Deactivated bool
	TakenDown   bool
}

// HasEmail はメールアドレスが登録されているかを返す。
func (a *Account) HasEmail() bool {
	return a.Email != ""
}

// AvailabilityFlags はアカウント取得時に無効化・テイクダウン済みのアカウントを含めるかを指定する。
type AvailabilityFlags struct {
	IncludeDeactivated bool
	IncludeTakenDown   bool
}

// TokenPurpose はアカウント操作トークンの用途を表す。
type TokenPurpose string

const (
	TokenPurposeConfirmEmail  TokenPurpose = "confirm_email"
	TokenPurposeUpdateEmail   TokenPurpose = "update_email"
	TokenPurposeResetPassword TokenPurpose = "reset_password"
	TokenPurposeDeleteAccount TokenPurpose = "delete_account"
	TokenPurposePLCOperation  TokenPurpose = "plc_operation"
)

// Valid は定義済みの用途かどうかを返す。
func (p TokenPurpose) Valid() bool {
	switch p {
	case TokenPurposeConfirmEmail, TokenPurposeUpdateEmail, TokenPurposeResetPassword,
		TokenPurposeDeleteAccount, TokenPurposePLCOperation:
		return true
	default:
		return false
	}
}

// AccountActionToken は(did, purpose)の組に紐付いた単一用途トークン。
// HTTPレスポンスには含めず、アカウント自身のメールアドレスにのみ送る。
type AccountActionToken struct {
	DID     string
	Purpose TokenPurpose
	Value   string
}
