package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MrEthical07/userauth"
	"github.com/MrEthical07/userauth/middleware"
)

type registerRequest struct {
	Email     string `json:"email" binding:"required"`
	Username  string `json:"username" binding:"required"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (a *api) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email, username and password are required")
		return
	}
	bundle, err := a.engine.Register(c.Request.Context(), userauth.RegisterInput{
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, bundle)
}

func (a *api) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}
	bundle, err := a.engine.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, bundle)
}

func (a *api) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "refreshToken is required")
		return
	}
	bundle, err := a.engine.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, bundle)
}

func (a *api) logout(c *gin.Context) {
	claims, _ := middleware.Claims(c)
	if err := a.engine.Logout(c.Request.Context(), claims.Subject); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

func (a *api) me(c *gin.Context) {
	claims, _ := middleware.Claims(c)
	c.JSON(http.StatusOK, gin.H{
		"email":     claims.Subject,
		"roles":     claims.Roles,
		"expiresAt": claims.ExpiresAt,
	})
}

func (a *api) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "currentPassword and newPassword are required")
		return
	}
	claims, _ := middleware.Claims(c)
	if err := a.engine.ChangePassword(c.Request.Context(), claims.Subject, req.CurrentPassword, req.NewPassword); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Password changed successfully"})
}

func (a *api) deleteAccount(c *gin.Context) {
	claims, _ := middleware.Claims(c)
	if err := a.engine.DeleteAccount(c.Request.Context(), claims.Subject); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Account deleted successfully"})
}

func (a *api) verifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		badRequest(c, "token is required")
		return
	}
	if err := a.engine.VerifyEmail(c.Request.Context(), token); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Email verified successfully"})
}

func (a *api) resendVerification(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email is required")
		return
	}
	if err := a.engine.RequestEmailVerification(c.Request.Context(), req.Email); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Verification email sent"})
}

// forgotPassword answers the same way whether or not the account exists.
func (a *api) forgotPassword(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email is required")
		return
	}
	if err := a.engine.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "If the email exists, a password reset link has been sent"})
}

func (a *api) checkResetToken(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		badRequest(c, "token is required")
		return
	}
	if _, err := a.engine.CheckResetToken(c.Request.Context(), token); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

func (a *api) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "token and newPassword are required")
		return
	}
	if err := a.engine.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Password reset successfully"})
}
