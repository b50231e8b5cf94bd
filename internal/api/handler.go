package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/communitypay/cc-ledger/internal/chaintx"
	"github.com/communitypay/cc-ledger/internal/domain"
	"github.com/communitypay/cc-ledger/internal/ledger"
)

// Handler carries the REST endpoint implementations
type Handler struct {
	ledger  *ledger.Ledger
	tracker *chaintx.Tracker
}

// NewHandler creates a REST handler
func NewHandler(lg *ledger.Ledger, tracker *chaintx.Tracker) *Handler {
	return &Handler{ledger: lg, tracker: tracker}
}

// transferRequest is the POST /transfers payload. Amounts travel as decimal
// strings to keep precision out of float territory.
type transferRequest struct {
	FromAddress  string `json:"from_address" binding:"required"`
	FromCurrency string `json:"from_currency" binding:"required"`
	ToAddress    string `json:"to_address" binding:"required"`
	ToCurrency   string `json:"to_currency" binding:"required"`
	Amount       string `json:"amount" binding:"required"`
	Context      string `json:"context"`
}

// CreateTransfer handles POST /api/v1/transfers
func (h *Handler) CreateTransfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondValidationError(c, "amount is not a valid decimal")
		return
	}

	tx, err := h.ledger.Transfer(c.Request.Context(), ledger.TransferRequest{
		From:    domain.Participant{AccountAddress: req.FromAddress, Currency: req.FromCurrency},
		To:      domain.Participant{AccountAddress: req.ToAddress, Currency: req.ToCurrency},
		Amount:  amount,
		Context: domain.TxContext(req.Context),
	})
	if err != nil {
		h.respondTransferError(c, tx, err)
		return
	}

	c.JSON(http.StatusCreated, tx)
}

// RevertTransaction handles POST /api/v1/transactions/:id/revert
func (h *Handler) RevertTransaction(c *gin.Context) {
	tx, err := h.ledger.Revert(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondTransferError(c, tx, err)
		return
	}

	c.JSON(http.StatusCreated, tx)
}

// respondTransferError maps ledger errors to HTTP responses. An insufficient
// funds outcome still carries the CANCELED transaction in the body.
func (h *Handler) respondTransferError(c *gin.Context, tx *domain.Transaction, err error) {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":       errorDetail{Code: errCodeInsufficientFunds, Message: err.Error()},
			"transaction": tx,
		})
	case errors.Is(err, domain.ErrInvalidAmount):
		respondValidationError(c, err.Error())
	case errors.Is(err, domain.ErrUnknownParticipant), errors.Is(err, domain.ErrUnknownCurrency),
		errors.Is(err, domain.ErrTransactionNotFound):
		respondNotFound(c, err.Error())
	case errors.Is(err, domain.ErrNotRevertible), errors.Is(err, domain.ErrConflict):
		respondConflict(c, err.Error())
	default:
		respondInternalError(c, err, "Transfer failed")
	}
}

// GetTransaction handles GET /api/v1/transactions/:id
func (h *Handler) GetTransaction(c *gin.Context) {
	tx, err := h.ledger.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			respondNotFound(c, err.Error())
			return
		}
		respondInternalError(c, err, "Failed to load transaction")
		return
	}

	c.JSON(http.StatusOK, tx)
}

// ListTransactions handles GET /api/v1/transactions
func (h *Handler) ListTransactions(c *gin.Context) {
	var query struct {
		Address     string `form:"address"`
		FromAddress string `form:"from_address"`
		ToAddress   string `form:"to_address"`
		Context     string `form:"context"`
		State       string `form:"state"`
		Currency    string `form:"currency"`
		Limit       int    `form:"limit,default=100"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	txs, err := h.ledger.List(c.Request.Context(), domain.TxFilter{
		Address:     query.Address,
		FromAddress: query.FromAddress,
		ToAddress:   query.ToAddress,
		Context:     domain.TxContext(query.Context),
		State:       domain.TxState(query.State),
		Currency:    query.Currency,
		Limit:       query.Limit,
	})
	if err != nil {
		respondInternalError(c, err, "Failed to list transactions")
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

// GetBalance handles GET /api/v1/balances/:address/:currency
func (h *Handler) GetBalance(c *gin.Context) {
	balance, err := h.ledger.GetBalance(c.Request.Context(), c.Param("address"), c.Param("currency"))
	if err != nil {
		if errors.Is(err, domain.ErrUnknownParticipant) || errors.Is(err, domain.ErrUnknownCurrency) {
			respondNotFound(c, err.Error())
			return
		}
		respondInternalError(c, err, "Failed to load balance")
		return
	}

	c.JSON(http.StatusOK, balance)
}

// registerWalletRequest is the POST /wallets payload
type registerWalletRequest struct {
	Address     string `json:"address" binding:"required"`
	Type        string `json:"type" binding:"required"`
	Index       int    `json:"index"`
	CommunityID string `json:"community_id" binding:"required"`
}

// RegisterWallet handles POST /api/v1/wallets
func (h *Handler) RegisterWallet(c *gin.Context) {
	var req registerWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	wallet, err := h.ledger.RegisterWallet(c.Request.Context(), domain.Wallet{
		Address:     req.Address,
		Type:        req.Type,
		Index:       req.Index,
		CommunityID: req.CommunityID,
	})
	if err != nil {
		respondInternalError(c, err, "Failed to register wallet", zap.String("address", req.Address))
		return
	}

	c.JSON(http.StatusCreated, wallet)
}

// recordChainTxRequest is the POST /chain/transactions payload
type recordChainTxRequest struct {
	Hash string         `json:"hash" binding:"required"`
	Type string         `json:"type" binding:"required"`
	Meta map[string]any `json:"meta"`
}

// RecordChainTransaction handles POST /api/v1/chain/transactions
func (h *Handler) RecordChainTransaction(c *gin.Context) {
	var req recordChainTxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	txType := domain.ChainTxType(req.Type)
	if txType != domain.ChainTxTypeTransfer && txType != domain.ChainTxTypeChange {
		respondValidationError(c, "type must be TRANSFER or CHANGE")
		return
	}

	record, err := h.tracker.Record(c.Request.Context(), req.Hash, txType, req.Meta)
	if err != nil {
		if errors.Is(err, domain.ErrGateway) {
			respondWithError(c, http.StatusBadGateway, errCodeGatewayError, err.Error())
			return
		}
		respondInternalError(c, err, "Failed to record chain transaction", zap.String("hash", req.Hash))
		return
	}

	c.JSON(http.StatusCreated, record)
}

// SyncChainState handles POST /api/v1/chain/sync
func (h *Handler) SyncChainState(c *gin.Context) {
	var query struct {
		Address string `form:"address"`
		Type    string `form:"type"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	records, err := h.tracker.SyncState(c.Request.Context(), query.Address, domain.ChainTxType(query.Type))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNoMatch):
			respondNotFound(c, err.Error())
		case errors.Is(err, domain.ErrGateway):
			respondWithError(c, http.StatusBadGateway, errCodeGatewayError, err.Error())
		default:
			respondInternalError(c, err, "Failed to sync chain state")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": records})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
