package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-guard/internal/core/domain"
	"github.com/arklim/social-platform-guard/internal/usecase"
)

// LoginHandler exposes the login admission and OTP confirmation endpoints.
type LoginHandler struct {
	admission *usecase.AdmissionService
}

// NewLoginHandler constructs a login handler.
func NewLoginHandler(admission *usecase.AdmissionService) *LoginHandler {
	return &LoginHandler{admission: admission}
}

// RegisterRoutes binds login admission routes to the provided router group.
func (h *LoginHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.POST("/validate", h.ValidateLogin)
	r.POST("/otp/confirm", h.ConfirmOtp)
	r.POST("/otp/resend", h.ResendOtp)
}

// ValidateLogin godoc
// @Summary Validate a login attempt
// @Description Runs the admission decision for an authenticated login attempt and either admits a session or escalates to an OTP challenge.
// @Tags Login
// @Accept json
// @Produce json
// @Param request body LoginValidateRequest true "Login attempt"
// @Success 200 {object} LoginValidateResponse
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/login/validate [post]
func (h *LoginHandler) ValidateLogin(c *gin.Context) {
	if h.admission == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "login validation unavailable"))
		return
	}

	var req LoginValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "user_id is required"))
		return
	}

	fingerprint := newFingerprint(req.Fingerprint)
	identity := domain.IssueOrConfirmDevice(req.DeviceID, fingerprint)

	attempt := domain.LoginAttempt{
		UserID:      req.UserID,
		DeviceID:    identity.DeviceID,
		Fingerprint: fingerprint,
		IPAddress:   req.IPAddress,
		Country:     req.Country,
		UserAgent:   req.UserAgent,
		HasOtpCode:  req.HasOtpCode,
	}

	result, err := h.admission.ValidateLogin(c.Request.Context(), attempt)
	if err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrAdmissionUnavailable, Status: http.StatusServiceUnavailable, Message: "login validation unavailable"},
		}
		RespondWithMappedError(c, err, cases, http.StatusBadRequest, "invalid login attempt")
		return
	}

	c.JSON(http.StatusOK, newLoginValidateResponse(result, identity.DeviceID))
}

// ConfirmOtp godoc
// @Summary Confirm an OTP challenge
// @Description Redeems the one-time code for a pending challenge and completes admission.
// @Tags Login
// @Accept json
// @Produce json
// @Param request body OtpConfirmRequest true "Challenge redemption"
// @Success 200 {object} LoginValidateResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/login/otp/confirm [post]
func (h *LoginHandler) ConfirmOtp(c *gin.Context) {
	if h.admission == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "login validation unavailable"))
		return
	}

	var req OtpConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "challenge_token and code are required"))
		return
	}

	result, err := h.admission.ConfirmOtp(c.Request.Context(), req.ChallengeToken, req.Code)
	if err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrChallengeNotFound, Status: http.StatusNotFound, Message: "challenge not found"},
			{Err: usecase.ErrChallengeExpired, Status: http.StatusGone, Message: "challenge expired"},
			{Err: usecase.ErrOtpCodeMismatch, Status: http.StatusUnauthorized, Message: "invalid code"},
			{Err: usecase.ErrOtpAttemptsExceeded, Status: http.StatusTooManyRequests, Message: "too many invalid codes"},
			{Err: usecase.ErrAdmissionUnavailable, Status: http.StatusServiceUnavailable, Message: "login validation unavailable"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to confirm code")
		return
	}

	c.JSON(http.StatusOK, newLoginValidateResponse(result, ""))
}

// ResendOtp godoc
// @Summary Resend an OTP code
// @Description Dispatches a fresh code for the live challenge of the user and device pair.
// @Tags Login
// @Accept json
// @Produce json
// @Param request body OtpResendRequest true "Resend request"
// @Success 200 {object} OtpResendResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/login/otp/resend [post]
func (h *LoginHandler) ResendOtp(c *gin.Context) {
	if h.admission == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "login validation unavailable"))
		return
	}

	var req OtpResendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "user_id and device_id are required"))
		return
	}

	challenge, err := h.admission.ResendOtp(c.Request.Context(), req.UserID, req.DeviceID)
	if err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrChallengeNotFound, Status: http.StatusNotFound, Message: "no pending challenge"},
			{Err: usecase.ErrChallengeExpired, Status: http.StatusGone, Message: "challenge expired"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to resend code")
		return
	}

	c.JSON(http.StatusOK, OtpResendResponse{
		Message:        "one-time code sent",
		ChallengeToken: challenge.Token,
		ExpiresAt:      challenge.ExpiresAt,
	})
}
