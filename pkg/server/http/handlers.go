package httpfiber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/zama-ai/token-faucet/pkg/faucet"
	"github.com/zama-ai/token-faucet/pkg/identity"
	"github.com/zama-ai/token-faucet/pkg/logger"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 1000
)

// Kinds reported for failures that happen before the faucet is reached.
const (
	KindBadRequest = "BadRequest"
	KindNotFound   = "NotFound"
)

// Envelope holds the fields every signed body carries.
type Envelope struct {
	// Action names the operation the body was signed for
	Action string `json:"action"`
	// ExpiresAt is the unix time after which the signature is no longer accepted
	ExpiresAt int64 `json:"expiresAt"`
}

type ClaimRequest struct {
	Envelope
	Asset string `json:"asset"`
}

type AmountRequest struct {
	Envelope
	Asset string `json:"asset"`
	// Amount is a decimal string in display units
	Amount string `json:"amount"`
}

type WhitelistRequest struct {
	Envelope
	Account string `json:"account"`
	Asset   string `json:"asset"`
}

type AssetResponse struct {
	Symbol      string `json:"symbol"`
	Address     string `json:"address"`
	Decimals    uint8  `json:"decimals"`
	ClaimAmount string `json:"claimAmount"`
	Balance     string `json:"balance"`
}

type EligibilityResponse struct {
	Account     string `json:"account"`
	Asset       string `json:"asset"`
	Eligible    bool   `json:"eligible"`
	HasReceived bool   `json:"hasReceived"`
	// WaitSeconds is -1 when the account can never claim again
	WaitSeconds int64 `json:"waitSeconds"`
}

type ClaimResponse struct {
	Caller string    `json:"caller"`
	Asset  string    `json:"asset"`
	Amount string    `json:"amount"`
	Time   time.Time `json:"time"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// apiError is a failure with its response status and kind.
type apiError struct {
	status int
	kind   string
	err    error
}

func (e *apiError) Error() string { return e.err.Error() }

func (e *apiError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return &apiError{status: fiber.StatusBadRequest, kind: KindBadRequest, err: fmt.Errorf(format, args...)}
}

var statusByKind = map[faucet.Kind]int{
	faucet.KindNotEligible:       fiber.StatusTooManyRequests,
	faucet.KindInsufficientFunds: fiber.StatusConflict,
	faucet.KindUnauthorized:      fiber.StatusForbidden,
	faucet.KindInvalidAsset:      fiber.StatusNotFound,
	faucet.KindTransferFailed:    fiber.StatusBadGateway,
	faucet.KindTransferPending:   fiber.StatusGatewayTimeout,
	faucet.KindInvalidAmount:     fiber.StatusBadRequest,
}

// errorHandler renders every error as an ErrorResponse.
func errorHandler(c *fiber.Ctx, err error) error {
	status, kind := fiber.StatusInternalServerError, string(faucet.KindInternal)

	var apiErr *apiError
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &apiErr):
		status, kind = apiErr.status, apiErr.kind
	case errors.As(err, &fiberErr):
		status, kind = fiberErr.Code, KindBadRequest
		if fiberErr.Code == fiber.StatusNotFound {
			kind = KindNotFound
		}
	default:
		k := faucet.KindOf(err)
		if s, ok := statusByKind[k]; ok {
			status, kind = s, string(k)
		}
	}

	if status >= fiber.StatusInternalServerError {
		logger.ErrorContext(c.UserContext(), "request failed", "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(ErrorResponse{Error: kind, Message: err.Error()})
}

// authenticate decodes the signed body into dst and returns its signer. The body
// must have been signed for action.
func (s *Server) authenticate(c *fiber.Ctx, action string, dst any, envelope *Envelope) (common.Address, error) {
	body := c.Body()
	if err := json.Unmarshal(body, dst); err != nil {
		return common.Address{}, badRequest("invalid request body: %v", err)
	}
	if envelope.Action != action {
		return common.Address{}, fmt.Errorf("%w: body was signed for action %q, not %q", faucet.ErrUnauthorized, envelope.Action, action)
	}
	caller, err := s.verifier.Verify(body, c.Get(identity.SignatureHeader), envelope.ExpiresAt)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", faucet.ErrUnauthorized, err)
	}
	c.SetUserContext(context.WithValue(c.UserContext(), callerKey, caller.Hex()))
	return caller, nil
}

func parseAccount(value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, badRequest("invalid account address %q", value)
	}
	return common.HexToAddress(value), nil
}

func (s *Server) parseAmount(selector, amount string) (*faucet.Asset, *big.Int, error) {
	asset, err := s.faucet.Asset(selector)
	if err != nil {
		return nil, nil, err
	}
	value, err := asset.Unit().Parse(strings.TrimSpace(amount))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", faucet.ErrInvalidAmount, err)
	}
	return asset, value, nil
}

func (s *Server) handleOwner(c *fiber.Ctx) error {
	policy, scope := s.faucet.Policy()
	return c.JSON(fiber.Map{
		"owner":   s.faucet.Owner().Hex(),
		"custody": s.faucet.Custody().Hex(),
		"policy":  policy.Name(),
		"scope":   string(scope),
	})
}

func (s *Server) handleAssets(c *fiber.Ctx) error {
	assets := s.faucet.Assets()
	resp := make([]AssetResponse, 0, len(assets))
	for _, asset := range assets {
		balance, err := s.faucet.Balance(asset.Symbol)
		if err != nil {
			return err
		}
		resp = append(resp, AssetResponse{
			Symbol:      asset.Symbol,
			Address:     asset.Address().Hex(),
			Decimals:    asset.Decimals,
			ClaimAmount: asset.Unit().Format(asset.ClaimAmount),
			Balance:     asset.Unit().Format(balance),
		})
	}
	return c.JSON(resp)
}

func (s *Server) handleBalance(c *fiber.Ctx) error {
	asset, err := s.faucet.Asset(c.Params("asset"))
	if err != nil {
		return err
	}
	balance, err := s.faucet.Balance(asset.Symbol)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"asset":   asset.Symbol,
		"balance": asset.Unit().Format(balance),
		"raw":     balance.String(),
	})
}

func (s *Server) handleEligibility(c *fiber.Ctx) error {
	account, err := parseAccount(c.Params("account"))
	if err != nil {
		return err
	}
	asset, err := s.faucet.Asset(c.Params("asset"))
	if err != nil {
		return err
	}
	wait, err := s.faucet.TimeUntilNextRequest(account, asset.Symbol)
	if err != nil {
		return err
	}
	received, err := s.faucet.HasReceived(account, asset.Symbol)
	if err != nil {
		return err
	}

	waitSeconds := int64(-1)
	if wait != faucet.Forever {
		waitSeconds = int64((wait + time.Second - 1) / time.Second)
	}
	return c.JSON(EligibilityResponse{
		Account:     account.Hex(),
		Asset:       asset.Symbol,
		Eligible:    wait == 0,
		HasReceived: received,
		WaitSeconds: waitSeconds,
	})
}

func (s *Server) handleEvents(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultEventLimit)
	if limit <= 0 || limit > maxEventLimit {
		return badRequest("limit must be between 1 and %d", maxEventLimit)
	}
	events := s.faucet.Events(limit)
	if events == nil {
		events = []faucet.Event{}
	}
	return c.JSON(events)
}

func (s *Server) handleRequest(c *fiber.Ctx) error {
	var req ClaimRequest
	caller, err := s.authenticate(c, identity.ActionRequest, &req, &req.Envelope)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	receipt, err := s.faucet.RequestTokens(ctx, caller, req.Asset)
	if err != nil {
		logger.InfoContext(ctx, "claim rejected", "asset", req.Asset, "kind", string(faucet.KindOf(err)))
		return err
	}
	unit := receipt.Asset.Unit()
	logger.InfoContext(ctx, "claim granted", "asset", receipt.Asset.Symbol, "amount", unit.Format(receipt.Amount))
	return c.JSON(ClaimResponse{
		Caller: receipt.Caller.Hex(),
		Asset:  receipt.Asset.Symbol,
		Amount: unit.Format(receipt.Amount),
		Time:   receipt.Time,
	})
}

func (s *Server) handleDeposit(c *fiber.Ctx) error {
	return s.handleAmount(c, identity.ActionDeposit, s.faucet.DepositTokens)
}

func (s *Server) handleWithdraw(c *fiber.Ctx) error {
	return s.handleAmount(c, identity.ActionWithdraw, s.faucet.WithdrawTokens)
}

type amountOp func(ctx context.Context, caller common.Address, selector string, amount *big.Int) error

func (s *Server) handleAmount(c *fiber.Ctx, name string, op amountOp) error {
	var req AmountRequest
	caller, err := s.authenticate(c, name, &req, &req.Envelope)
	if err != nil {
		return err
	}
	asset, amount, err := s.parseAmount(req.Asset, req.Amount)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	if err := op(ctx, caller, asset.Symbol, amount); err != nil {
		logger.InfoContext(ctx, name+" rejected", "asset", asset.Symbol, "kind", string(faucet.KindOf(err)))
		return err
	}
	balance, err := s.faucet.Balance(asset.Symbol)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, name+" applied", "asset", asset.Symbol, "amount", asset.Unit().Format(amount))
	return c.JSON(fiber.Map{
		"asset":   asset.Symbol,
		"amount":  asset.Unit().Format(amount),
		"balance": asset.Unit().Format(balance),
	})
}

func (s *Server) handleRemoveFromWhitelist(c *fiber.Ctx) error {
	var req WhitelistRequest
	caller, err := s.authenticate(c, identity.ActionRevoke, &req, &req.Envelope)
	if err != nil {
		return err
	}
	account, err := parseAccount(req.Account)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	if err := s.faucet.RemoveFromWhitelist(ctx, caller, account, req.Asset); err != nil {
		return err
	}
	logger.InfoContext(ctx, "eligibility revoked", "account", account.Hex(), "asset", req.Asset)
	return c.JSON(fiber.Map{
		"account": account.Hex(),
		"asset":   req.Asset,
	})
}
