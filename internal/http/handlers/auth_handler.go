// Auth HTTP handlers.
//
//   - POST /auth/signup, /auth/signin, /auth/refresh
//   - POST /auth/signout                 (bearer)
//   - POST /auth/reset-password
//   - POST /auth/update-password         (bearer or reset token)
//   - POST /auth/oauth/{provider}
//   - GET  /auth/user, PUT /auth/profile (bearer)
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/persona-chat-backend/internal/domain"
	"github.com/tbourn/persona-chat-backend/internal/http/middleware"
	"github.com/tbourn/persona-chat-backend/internal/services"
)

//
// DTOs
//

// SignUpRequest is the registration payload.
type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email,max=255" example:"ada@example.com"`
	Password string `json:"password" binding:"required,min=6,max=72" example:"correct-horse"`
	Username string `json:"username" binding:"omitempty,min=3,max=50" example:"ada"`
	FullName string `json:"full_name" binding:"omitempty,max=100" example:"Ada Lovelace"`
}

// SignInRequest is the credentials payload.
type SignInRequest struct {
	Email    string `json:"email" binding:"required,email" example:"ada@example.com"`
	Password string `json:"password" binding:"required" example:"correct-horse"`
}

// RefreshRequest carries a refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// SignOutRequest optionally carries the refresh token to revoke as well.
type SignOutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ResetPasswordRequest asks for a reset link.
type ResetPasswordRequest struct {
	Email string `json:"email" binding:"required,email" example:"ada@example.com"`
}

// UpdatePasswordRequest sets a new password. Token is the reset token when
// the caller is not signed in.
type UpdatePasswordRequest struct {
	Password string `json:"password" binding:"required,min=6,max=72"`
	Token    string `json:"token"`
}

// ProfileRequest updates profile fields; omitted fields are unchanged.
type ProfileRequest struct {
	Username  *string `json:"username" binding:"omitempty,min=3,max=50" example:"ada"`
	FullName  *string `json:"full_name" binding:"omitempty,max=100"`
	Bio       *string `json:"bio" binding:"omitempty,max=500"`
	AvatarURL *string `json:"avatar_url" binding:"omitempty,max=512"`
	Website   *string `json:"website" binding:"omitempty,max=512"`
	Location  *string `json:"location" binding:"omitempty,max=100"`
}

// AccountInfo is the identity part of the current-user response.
type AccountInfo struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// CurrentUserResponse is returned by GET /auth/user.
type CurrentUserResponse struct {
	User    AccountInfo  `json:"user"`
	Profile *domain.User `json:"profile"`
}

// ProfileResponse wraps an updated profile.
type ProfileResponse struct {
	Profile *domain.User `json:"profile"`
}

// OAuthResponse carries the provider authorize URL.
type OAuthResponse struct {
	URL string `json:"url" example:"http://localhost:9999/auth/v1/authorize?provider=github&redirect_to=http%3A%2F%2Flocalhost%3A3000%2Fauth%2Fcallback"`
}

//
// Handlers
//

// SignUp godoc
// @ID          signUp
// @Summary     Create an account
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.SignUpRequest  true  "Account"
// @Success     201   {object}  services.AuthResult
// @Failure     400   {object}  middleware.ErrorBody  "Validation failed"
// @Failure     409   {object}  middleware.ErrorBody  "Email or username taken"
// @Router      /auth/signup [post]
func (h *Handlers) SignUp(c *gin.Context) {
	var req SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBind(c, err)
		return
	}
	res, err := h.auth.SignUp(c.Request.Context(), services.SignUpInput{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
		FullName: req.FullName,
	})
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, res)
}

// SignIn godoc
// @ID          signIn
// @Summary     Sign in with email and password
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.SignInRequest  true  "Credentials"
// @Success     200   {object}  services.AuthResult
// @Failure     400   {object}  middleware.ErrorBody
// @Failure     401   {object}  middleware.ErrorBody  "Invalid email or password"
// @Router      /auth/signin [post]
func (h *Handlers) SignIn(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBind(c, err)
		return
	}
	res, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// SignOut godoc
// @ID          signOut
// @Summary     Revoke the current session
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.SignOutRequest  false  "Refresh token to revoke as well"
// @Success     200   {object}  handlers.MessageResponse
// @Failure     401   {object}  middleware.ErrorBody
// @Router      /auth/signout [post]
func (h *Handlers) SignOut(c *gin.Context) {
	claims, found := middleware.Claims(c)
	if !found {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "Authentication required", nil)
		return
	}
	var req SignOutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			failBind(c, err)
			return
		}
	}
	if err := h.auth.SignOut(c.Request.Context(), claims, req.RefreshToken); err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, MessageResponse{Message: "Signed out successfully"})
}

// Refresh godoc
// @ID          refreshSession
// @Summary     Exchange a refresh token for a new session
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RefreshRequest  true  "Refresh token"
// @Success     200   {object}  services.AuthResult
// @Failure     401   {object}  middleware.ErrorBody
// @Router      /auth/refresh [post]
func (h *Handlers) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBind(c, err)
		return
	}
	res, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// ResetPassword godoc
// @ID          resetPassword
// @Summary     Send a password reset link
// @Description Always succeeds so that accounts cannot be enumerated.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.ResetPasswordRequest  true  "Email"
// @Success     200   {object}  handlers.MessageResponse
// @Failure     400   {object}  middleware.ErrorBody
// @Router      /auth/reset-password [post]
func (h *Handlers) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBind(c, err)
		return
	}
	if err := h.auth.ResetPassword(c.Request.Context(), req.Email); err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, MessageResponse{Message: "If the email is registered, a reset link has been sent"})
}

// UpdatePassword godoc
// @ID          updatePassword
// @Summary     Set a new password
// @Description Signed-in callers change their own password; otherwise a reset token is required.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.UpdatePasswordRequest  true  "New password"
// @Success     200   {object}  handlers.MessageResponse
// @Failure     400   {object}  middleware.ErrorBody
// @Failure     401   {object}  middleware.ErrorBody
// @Router      /auth/update-password [post]
func (h *Handlers) UpdatePassword(c *gin.Context) {
	var req UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBind(c, err)
		return
	}
	uid := userID(c)
	if uid == "" && req.Token == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "Authentication or reset token required", nil)
		return
	}
	if err := h.auth.UpdatePassword(c.Request.Context(), uid, req.Token, req.Password); err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, MessageResponse{Message: "Password updated successfully"})
}

// OAuth godoc
// @ID          oauthURL
// @Summary     Get the OAuth authorize URL for a provider
// @Tags        Auth
// @Produce     json
// @Param       provider  path      string  true  "Provider"  Enums(google, github, discord, twitter)
// @Success     200       {object}  handlers.OAuthResponse
// @Failure     400       {object}  middleware.ErrorBody
// @Router      /auth/oauth/{provider} [post]
func (h *Handlers) OAuth(c *gin.Context) {
	u, err := h.auth.OAuthURL(c.Param("provider"))
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, OAuthResponse{URL: u})
}

// CurrentUser godoc
// @ID          currentUser
// @Summary     Current user and profile
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.CurrentUserResponse
// @Failure     401  {object}  middleware.ErrorBody
// @Failure     404  {object}  middleware.ErrorBody
// @Router      /auth/user [get]
func (h *Handlers) CurrentUser(c *gin.Context) {
	u, err := h.auth.CurrentUser(c.Request.Context(), userID(c))
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, CurrentUserResponse{
		User:    AccountInfo{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt},
		Profile: u,
	})
}

// UpdateProfile godoc
// @ID          updateProfile
// @Summary     Update the caller's profile
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.ProfileRequest  true  "Profile fields"
// @Success     200   {object}  handlers.ProfileResponse
// @Failure     400   {object}  middleware.ErrorBody
// @Failure     409   {object}  middleware.ErrorBody  "Username taken"
// @Router      /auth/profile [put]
func (h *Handlers) UpdateProfile(c *gin.Context) {
	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBind(c, err)
		return
	}
	u, err := h.auth.UpdateProfile(c.Request.Context(), userID(c), services.ProfileInput{
		Username:  req.Username,
		FullName:  req.FullName,
		Bio:       req.Bio,
		AvatarURL: req.AvatarURL,
		Website:   req.Website,
		Location:  req.Location,
	})
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ProfileResponse{Profile: u})
}
