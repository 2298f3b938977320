package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/eaglebank/bank-service/internal/command"
	"github.com/eaglebank/bank-service/shared/cqrs"
	"github.com/eaglebank/bank-service/shared/middleware"
	"github.com/eaglebank/bank-service/shared/models"
	"github.com/gin-gonic/gin"
)

// Application status codes carried in every response body.
const (
	StatusOK                  = 200
	StatusBadRequest          = 400
	StatusUnknownUser         = 301
	StatusBadCredentials      = 302
	StatusNotEnoughToRepay    = 303
	StatusInvalidAmount       = 304
	StatusOverpayment         = 305
	StatusNotEnoughToTransfer = 306
	StatusInternal            = 500
	StatusTransient           = 503
)

// BankCommander defines the write-side operations used by BankHandler.
type BankCommander interface {
	Register(context.Context, cqrs.RegisterCommand) error
	Deposit(context.Context, cqrs.DepositCommand) (*models.Balance, error)
	Transfer(context.Context, cqrs.TransferCommand) (*models.Balance, error)
	TakeLoan(context.Context, cqrs.TakeLoanCommand) (*models.Balance, error)
	RepayLoan(context.Context, cqrs.RepayLoanCommand) (*models.Balance, error)
}

// BankQuerier defines the read-side operations used by BankHandler.
type BankQuerier interface {
	BalanceCheck(context.Context, cqrs.BalanceCheckQuery) (*models.Balance, error)
}

type BankHandler struct {
	commands BankCommander
	queries  BankQuerier
	legacy   bool
}

// CredentialsRequest accepts the secret as either "password" or "secret".
type CredentialsRequest struct {
	Username string `json:"username" validate:"required,max=64,printascii"`
	Password string `json:"password" validate:"required_without=Secret"`
	Secret   string `json:"secret" validate:"required_without=Password"`
}

func (r CredentialsRequest) secret() string {
	if r.Secret != "" {
		return r.Secret
	}
	return r.Password
}

type AmountRequest struct {
	CredentialsRequest
	Amount *int64 `json:"amount" validate:"required"`
}

type TransferRequest struct {
	AmountRequest
	To string `json:"to" validate:"required,max=64,printascii"`
}

type Response struct {
	Status  int    `json:"status"`
	Message string `json:"msg"`
}

type BalanceResponse struct {
	Status   int    `json:"status"`
	Message  string `json:"msg"`
	Username string `json:"username"`
	Balance  int64  `json:"balance"`
	Debt     int64  `json:"debt"`
}

// NewBankHandler builds the handler. With legacy set every response uses
// HTTP 200 and only the body status tells outcomes apart.
func NewBankHandler(commands BankCommander, queries BankQuerier, legacy bool) *BankHandler {
	return &BankHandler{commands: commands, queries: queries, legacy: legacy}
}

func (h *BankHandler) Register(c *gin.Context) {
	var req CredentialsRequest
	if !h.bind(c, &req) {
		return
	}

	err := h.commands.Register(c.Request.Context(), cqrs.RegisterCommand{
		Username: req.Username,
		Secret:   req.secret(),
	})
	if err != nil {
		h.respondError(c, err, StatusNotEnoughToTransfer)
		return
	}
	h.respond(c, "You successfully signed up for the API")
}

func (h *BankHandler) Add(c *gin.Context) {
	var req AmountRequest
	if !h.bind(c, &req) {
		return
	}

	bal, err := h.commands.Deposit(c.Request.Context(), cqrs.DepositCommand{
		Username: req.Username,
		Secret:   req.secret(),
		Amount:   *req.Amount,
	})
	if err != nil {
		h.respondError(c, err, StatusNotEnoughToTransfer)
		return
	}
	h.respond(c, fmt.Sprintf("Amount added successfully, the new balance is %d", bal.Balance))
}

func (h *BankHandler) Transfer(c *gin.Context) {
	var req TransferRequest
	if !h.bind(c, &req) {
		return
	}

	bal, err := h.commands.Transfer(c.Request.Context(), cqrs.TransferCommand{
		Username: req.Username,
		Secret:   req.secret(),
		To:       req.To,
		Amount:   *req.Amount,
	})
	if err != nil {
		h.respondError(c, err, StatusNotEnoughToTransfer)
		return
	}
	h.respond(c, fmt.Sprintf("Amount transferred successfully, your new balance is %d", bal.Balance))
}

func (h *BankHandler) BalanceCheck(c *gin.Context) {
	var req CredentialsRequest
	if !h.bind(c, &req) {
		return
	}

	bal, err := h.queries.BalanceCheck(c.Request.Context(), cqrs.BalanceCheckQuery{
		Username: req.Username,
		Secret:   req.secret(),
	})
	if err != nil {
		h.respondError(c, err, StatusNotEnoughToTransfer)
		return
	}
	c.Set(middleware.AppStatusKey, StatusOK)
	c.JSON(http.StatusOK, BalanceResponse{
		Status:   StatusOK,
		Message:  "Balance retrieved",
		Username: bal.Username,
		Balance:  bal.Balance,
		Debt:     bal.Debt,
	})
}

func (h *BankHandler) TakeLoan(c *gin.Context) {
	var req AmountRequest
	if !h.bind(c, &req) {
		return
	}

	bal, err := h.commands.TakeLoan(c.Request.Context(), cqrs.TakeLoanCommand{
		Username: req.Username,
		Secret:   req.secret(),
		Amount:   *req.Amount,
	})
	if err != nil {
		h.respondError(c, err, StatusNotEnoughToTransfer)
		return
	}
	h.respond(c, fmt.Sprintf("Loan added successfully, the new balance is %d", bal.Balance))
}

func (h *BankHandler) PayLoan(c *gin.Context) {
	var req AmountRequest
	if !h.bind(c, &req) {
		return
	}

	_, err := h.commands.RepayLoan(c.Request.Context(), cqrs.RepayLoanCommand{
		Username: req.Username,
		Secret:   req.secret(),
		Amount:   *req.Amount,
	})
	if err != nil {
		h.respondError(c, err, StatusNotEnoughToRepay)
		return
	}
	h.respond(c, "Paid loan successfully")
}

func (h *BankHandler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.RespondWithValidationError(c, h.httpStatus(http.StatusBadRequest), middleware.BindErrors(err))
		return false
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, h.httpStatus(http.StatusBadRequest), validationErrors)
		return false
	}
	return true
}

func (h *BankHandler) respond(c *gin.Context, message string) {
	c.Set(middleware.AppStatusKey, StatusOK)
	c.JSON(http.StatusOK, Response{Status: StatusOK, Message: message})
}

// respondError maps a domain error onto the response envelope.
// insufficientStatus distinguishes the payLoan and transfer codes for
// ErrInsufficientFunds.
func (h *BankHandler) respondError(c *gin.Context, err error, insufficientStatus int) {
	code, status, message := classify(err, insufficientStatus)
	if code == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	middleware.RespondWithError(c, h.httpStatus(code), status, message)
}

func (h *BankHandler) httpStatus(code int) int {
	if h.legacy {
		return http.StatusOK
	}
	return code
}

func classify(err error, insufficientStatus int) (code, status int, message string) {
	switch {
	case errors.Is(err, command.ErrAlreadyExists):
		return http.StatusConflict, StatusUnknownUser, "Invalid username, user already exists"
	case errors.Is(err, command.ErrUnknownUser):
		return http.StatusNotFound, StatusUnknownUser, "Invalid username"
	case errors.Is(err, command.ErrUnknownRecipient):
		return http.StatusNotFound, StatusUnknownUser, "Recipient does not exist"
	case errors.Is(err, command.ErrBadCredentials):
		return http.StatusUnauthorized, StatusBadCredentials, "Invalid password"
	case errors.Is(err, command.ErrInvalidAmount):
		return http.StatusBadRequest, StatusInvalidAmount, "The amount is not valid for this operation"
	case errors.Is(err, command.ErrInsufficientFunds):
		if insufficientStatus == StatusNotEnoughToRepay {
			return http.StatusUnprocessableEntity, StatusNotEnoughToRepay, "Not enough money in your account, please reconsider the amount to pay"
		}
		return http.StatusUnprocessableEntity, StatusNotEnoughToTransfer, "Transfer amount is higher than the balance. Please add money or take a loan"
	case errors.Is(err, command.ErrOverpayment):
		return http.StatusUnprocessableEntity, StatusOverpayment, "You're trying to pay more than you owe"
	case errors.Is(err, command.ErrTransient),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, StatusTransient, "Service temporarily unavailable, please retry"
	default:
		return http.StatusInternalServerError, StatusInternal, "Internal error"
	}
}
