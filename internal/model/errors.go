// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, catalog, order, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeEmptyCart          = "EMPTY_CART"
	ErrCodeProductNotFound    = "PRODUCT_NOT_FOUND"
	ErrCodeOrderNotFound      = "ORDER_NOT_FOUND"
	ErrCodeInvalidOrderStatus = "INVALID_ORDER_STATUS"
	ErrCodeProfileNotFound    = "PROFILE_NOT_FOUND"
	ErrCodeInvalidLogin       = "INVALID_LOGIN"
	ErrCodeEmailTaken         = "EMAIL_TAKEN"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeGatewayUnavailable = "GATEWAY_UNAVAILABLE"
	ErrCodeSessionLoading     = "SESSION_LOADING"
	ErrCodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	ErrCodeCSRF               = "CSRF_VALIDATION_FAILED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// --- 認証・ゲートウェイのエラー分類 ---

var (
	// ErrInvalidRefreshToken はリフレッシュトークンが無効・期限切れ・失効済みであることを示す。
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrInvalidLogin はメールアドレスまたはパスワードが一致しないことを示す。
	ErrInvalidLogin = errors.New("invalid email or password")
	// ErrEmailTaken はメールアドレスが登録済みであることを示す。
	ErrEmailTaken = errors.New("email already registered")
)

// AuthInitError はセッション取得の失敗を表す。
type AuthInitError struct {
	Err error
}

func (e *AuthInitError) Error() string {
	return fmt.Sprintf("auth initialization failed: %v", e.Err)
}

func (e *AuthInitError) Unwrap() error { return e.Err }

// InvalidCredentialError はリフレッシュ資格情報が無効になったことを表す。
// Auth Managerが内部で処理し、UIには表示しない。
type InvalidCredentialError struct {
	Reason string
}

func (e *InvalidCredentialError) Error() string {
	return fmt.Sprintf("invalid refresh credential: %s", e.Reason)
}

// Is はErrInvalidRefreshTokenとの比較を可能にする。
func (e *InvalidCredentialError) Is(target error) bool {
	return target == ErrInvalidRefreshToken
}

// ProfileFetchError はプロフィール取得の失敗を表す。致命的ではない。
type ProfileFetchError struct {
	UserID string
	Err    error
}

func (e *ProfileFetchError) Error() string {
	return fmt.Sprintf("failed to fetch profile %s: %v", e.UserID, e.Err)
}

func (e *ProfileFetchError) Unwrap() error { return e.Err }

// NetworkError はゲートウェイ呼び出しの一時的な失敗を表す。
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("gateway %s failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// NotFoundError は指定リソースが存在しないことを表す。
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ValidationError は入力値の検証エラーを表す。
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsInvalidCredential はエラーがリフレッシュ資格情報の無効化を示すかを判定する。
func IsInvalidCredential(err error) bool {
	var ice *InvalidCredentialError
	return errors.As(err, &ice) || errors.Is(err, ErrInvalidRefreshToken)
}

// --- APIError コンストラクタ ---

// NewValidationAPIError は入力検証エラーを生成する。
func NewValidationAPIError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "Please correct the highlighted fields and try again.",
	}
}

// NewEmptyCartError はカートが空の状態で注文しようとした場合のエラーを生成する。
func NewEmptyCartError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyCart,
		Message:  "Your cart is empty.",
		Category: "order",
		Action:   "Add some products to your cart before checking out.",
	}
}

// NewProductNotFoundError は商品未検出エラーを生成する。
func NewProductNotFoundError(productID string) *APIError {
	return &APIError{
		Code:     ErrCodeProductNotFound,
		Message:  fmt.Sprintf("Product not found: %s", productID),
		Category: "catalog",
		Action:   "Go back to the shop and pick another product.",
	}
}

// NewOrderNotFoundError は注文未検出エラーを生成する。
func NewOrderNotFoundError(orderID string) *APIError {
	return &APIError{
		Code:     ErrCodeOrderNotFound,
		Message:  fmt.Sprintf("Order not found: %s", orderID),
		Category: "order",
		Action:   "Check the order ID.",
	}
}

// NewInvalidOrderStatusError は不正な注文ステータスのエラーを生成する。
func NewInvalidOrderStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidOrderStatus,
		Message:  fmt.Sprintf("Invalid order status: %s", status),
		Category: "validation",
		Action:   "Use one of pending, processing, shipped, delivered, cancelled.",
	}
}

// NewProfileNotFoundError はプロフィール未検出エラーを生成する。
func NewProfileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  "Profile not found.",
		Category: "auth",
		Action:   "Sign out and sign in again.",
	}
}

// NewInvalidLoginError はメールアドレスまたはパスワードの誤りを表すエラーを生成する。
func NewInvalidLoginError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidLogin,
		Message:  "Invalid email or password.",
		Category: "auth",
		Action:   "Check your credentials and try again.",
	}
}

// NewEmailTakenError は登録済みメールアドレスでのサインアップエラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "An account with this email already exists.",
		Category: "auth",
		Action:   "Sign in instead, or use another email address.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required.",
		Category: "auth",
		Action:   "Please sign in.",
	}
}

// NewGatewayUnavailableError はバックエンドへの一時的な接続失敗を表すエラーを生成する。
func NewGatewayUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeGatewayUnavailable,
		Message:  "The store backend is temporarily unavailable.",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}

// NewSessionLoadingError は認証状態の解決待ちでページを表示できないことを表すエラーを生成する。
func NewSessionLoadingError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionLoading,
		Message:  "Loading...",
		Category: "auth",
		Action:   "Retry in a moment.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewCSRFError はCSRFトークン検証の失敗を表すエラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRF,
		Message:  "CSRF token validation failed.",
		Category: "auth",
		Action:   "Reload the page and try again.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Something went wrong.",
		Category: "system",
		Action:   "Please try again later.",
	}
}
