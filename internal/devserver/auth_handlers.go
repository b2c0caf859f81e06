package devserver

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shopsync-dev/shopsync/internal/assert"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// GoogleAuthRequest carries a Google identity token
type GoogleAuthRequest struct {
	Credential string `json:"credential" binding:"required"`
}

// GitHubAuthRequest carries a GitHub authorization code
type GitHubAuthRequest struct {
	Code string `json:"code" binding:"required"`
}

// GitHubAuthorizeRequest asks the stand-in authorize page for a code
type GitHubAuthorizeRequest struct {
	Login string `json:"login" form:"login"`
	Email string `json:"email" form:"email" binding:"omitempty,email"`
	Name  string `json:"name" form:"name"`
}

// UserDetail is the user as the storefront API serializes it
type UserDetail struct {
	ID       string `json:"id"`
	LegacyID string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	IsAdmin  bool   `json:"isAdmin"`
	Token    string `json:"token,omitempty"`
}

func userDetail(u *User, token string) UserDetail {
	name := u.Name
	if name == "" {
		name = u.Email
	}
	return UserDetail{
		ID:       u.ID,
		LegacyID: u.ID,
		Username: u.Email,
		Email:    u.Email,
		Name:     name,
		IsAdmin:  u.IsAdmin,
		Token:    token,
	}
}

func invalidGrant(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_grant",
		"message": "The code passed is incorrect or expired.",
	})
}

func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Email and password are required"})
		return
	}

	var user User
	err := s.db.Where("email = ?", strings.ToLower(req.Email)).First(&user).Error
	if err != nil || !CheckPassword(user.PasswordHash, req.Password) {
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error().Err(err).Msg("Failed to load user")
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "No active account found with the given credentials"})
		return
	}

	token, err := s.tokens.GenerateToken(&user)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate token")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to generate token"})
		return
	}

	s.logger.Info().Str("user_id", user.ID).Msg("Password login")
	c.JSON(http.StatusOK, userDetail(&user, token))
}

func (s *Server) googleAuth(c *gin.Context) {
	var req GoogleAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "credential is required"})
		return
	}

	claims, err := parseIdentityToken(req.Credential)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Rejected identity token")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grant", "message": "Invalid Google token"})
		return
	}

	user, err := s.findOrCreateUser(claims.Email, claims.Name)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to provision user")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	access, err := s.tokens.GenerateToken(user)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate token")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to generate token"})
		return
	}
	refresh, err := s.tokens.GenerateRefreshToken(user)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate refresh token")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":   userDetail(user, ""),
		"tokens": gin.H{"access": access, "refresh": refresh},
	})
}

// issueGitHubGrant stores a fresh single-use code for the given identity
func (s *Server) issueGitHubGrant(req GitHubAuthorizeRequest) (*GitHubGrant, error) {
	login := req.Login
	if login == "" {
		login = "octocat"
	}
	email := req.Email
	if email == "" {
		email = login + "@users.noreply.github.com"
	}

	code := uuid.NewString()
	assert.Length(code, 36)

	grant := &GitHubGrant{
		Code:      code,
		Login:     login,
		Email:     strings.ToLower(email),
		Name:      req.Name,
		ExpiresAt: s.now().Add(githubGrantTTL),
	}
	if err := s.db.Create(grant).Error; err != nil {
		return nil, err
	}
	return grant, nil
}

// githubAuthorize issues a code and returns it as JSON
func (s *Server) githubAuthorize(c *gin.Context) {
	var req GitHubAuthorizeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
			return
		}
	}

	grant, err := s.issueGitHubGrant(req)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to issue GitHub code")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": grant.Code, "expires_at": grant.ExpiresAt})
}

// githubAuthorizeRedirect behaves like the GitHub authorize page: it sends the
// browser back to redirect_uri with a fresh code and the caller's state
func (s *Server) githubAuthorizeRedirect(c *gin.Context) {
	var req GitHubAuthorizeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	redirectURI, err := url.Parse(c.Query("redirect_uri"))
	if err != nil || redirectURI.Scheme == "" || redirectURI.Host == "" {
		c.String(http.StatusBadRequest, "redirect_uri is required")
		return
	}

	grant, err := s.issueGitHubGrant(req)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to issue GitHub code")
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}

	q := redirectURI.Query()
	q.Set("code", grant.Code)
	if state := c.Query("state"); state != "" {
		q.Set("state", state)
	}
	redirectURI.RawQuery = q.Encode()

	c.Redirect(http.StatusFound, redirectURI.String())
}

func (s *Server) githubAuth(c *gin.Context) {
	var req GitHubAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "code is required"})
		return
	}

	// Consume the code atomically so a replay can never succeed
	now := s.now()
	res := s.db.Model(&GitHubGrant{}).
		Where("code = ? AND used_at IS NULL AND expires_at > ?", req.Code, now).
		Update("used_at", now)
	if res.Error != nil {
		s.logger.Error().Err(res.Error).Msg("Failed to consume GitHub code")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}
	if res.RowsAffected != 1 {
		s.logger.Warn().Msg("Rejected unknown, expired, or replayed GitHub code")
		invalidGrant(c)
		return
	}

	var grant GitHubGrant
	if err := s.db.Where("code = ?", req.Code).First(&grant).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to load GitHub grant")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	name := grant.Name
	if name == "" {
		name = grant.Login
	}
	user, err := s.findOrCreateUser(grant.Email, name)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to provision user")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	token, err := s.tokens.GenerateToken(user)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate token")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": userDetail(user, ""), "token": token})
}

func (s *Server) getProfile(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Authentication credentials were not provided."})
		return
	}
	c.JSON(http.StatusOK, userDetail(user, ""))
}

// findOrCreateUser provisions provider-authenticated users on first sign-in
func (s *Server) findOrCreateUser(email, name string) (*User, error) {
	email = strings.ToLower(email)

	var user User
	err := s.db.Where("email = ?", email).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// Provider users never sign in with a password
	random := make([]byte, 32)
	if _, err := rand.Read(random); err != nil {
		return nil, err
	}
	hash, err := HashPassword(hex.EncodeToString(random))
	if err != nil {
		return nil, err
	}

	user = User{Email: email, Name: name, PasswordHash: hash}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", user.ID).Str("email", email).Msg("Provisioned provider user")
	return &user, nil
}
