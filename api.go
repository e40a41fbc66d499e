package escrowd

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/asaskevich/govalidator"
	"github.com/dgraph-io/badger/v4"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/spf13/cast"
	"github.com/twitchtv/twirp"
)

func (s *Server) Handler() http.Handler {
	m := chi.NewMux()
	m.Use(middleware.Recoverer)
	m.Use(middleware.RealIP)
	m.Use(middleware.Logger)
	m.Use(middleware.Heartbeat("/hc"))
	m.Use(cors.AllowAll().Handler)
	m.Use(handleAuth(s.cfg.Issuer, s.cfg.JWTSecret))

	m.Get("/escrows", s.listEscrows)
	m.Post("/escrows", s.createEscrow)
	m.Get("/escrows/{id}", s.getEscrow)
	m.Post("/escrows/{id}/accept", s.acceptEscrow)
	m.Post("/escrows/{id}/cancel", s.cancelEscrow)
	m.Get("/balances", s.listBalances)
	m.Get("/coins", s.listCoins)
	m.Post("/transfers", s.createTransfer)
	m.Post("/transactions", s.submitTransaction)

	return m
}

func renderJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(200)

	_ = json.NewEncoder(w).Encode(v)
}

func renderErr(w http.ResponseWriter, err error) {
	_ = twirp.WriteError(w, err)
}

type escrowView struct {
	ID              string       `json:"id"`
	Status          EscrowStatus `json:"status"`
	DepositType     string       `json:"deposit_type"`
	PaymentType     string       `json:"payment_type"`
	DepositLabel    string       `json:"deposit_label"`
	PaymentLabel    string       `json:"payment_label"`
	RequestedAmount string       `json:"requested_amount"`
	OriginDigest    string       `json:"origin_digest"`
}

func newEscrowView(rec *EscrowRecord) *escrowView {
	return &escrowView{
		ID:              rec.ID,
		Status:          rec.Status,
		DepositType:     rec.TypeSignature.Deposit,
		PaymentType:     rec.TypeSignature.Payment,
		DepositLabel:    ShortLabel(rec.TypeSignature.Deposit),
		PaymentLabel:    ShortLabel(rec.TypeSignature.Payment),
		RequestedAmount: rec.DisplayAmount(),
		OriginDigest:    rec.OriginDigest,
	}
}

func (s *Server) renderListing(w http.ResponseWriter, listing *Listing) {
	views := make([]*escrowView, 0, len(listing.Escrows))
	for _, rec := range listing.Escrows {
		views = append(views, newEscrowView(rec))
	}

	renderJSON(w, map[string]any{
		"escrows":    views,
		"updated_at": listing.UpdatedAt,
	})
}

func (s *Server) listEscrows(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, ok := AccountFrom(ctx)
	if !ok {
		renderErr(w, twirp.Unauthenticated.Error("unauthenticated"))
		return
	}

	if !cast.ToBool(r.URL.Query().Get("refresh")) {
		listing, err := FindListing(s.db, account.Address)
		if err != nil {
			renderErr(w, err)
			return
		}

		if listing != nil {
			// serve cached, refresh in the background
			s.enqueueRefresh(account.Address)
			s.renderListing(w, listing)
			return
		}
	}

	listing, err := s.RefreshListing(ctx, account.Address)
	if err != nil {
		slog.Error("refresh listing failed", "owner", account.Address, slog.Any("err", err))
		renderErr(w, twirp.NewError(twirp.Unavailable, "listing refresh failed, retry"))
		return
	}

	s.renderListing(w, listing)
}

type escrowDetailView struct {
	*EscrowDetail
	DepositLabel    string `json:"deposit_label"`
	PaymentLabel    string `json:"payment_label"`
	RequestedAmount string `json:"requested_display"`
	DepositAmount   string `json:"deposit_display"`
	SelfTrade       bool   `json:"self_trade"`
}

func (s *Server) getEscrow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, ok := AccountFrom(ctx)
	if !ok {
		renderErr(w, twirp.Unauthenticated.Error("unauthenticated"))
		return
	}

	id := chi.URLParam(r, "id")
	if !IsAddress(id) {
		renderErr(w, twirp.InvalidArgumentError("id", "invalid object id"))
		return
	}

	detail, err := s.detectorFor(account.Address).Detect(ctx, id)
	if err != nil {
		renderDetectErr(w, err)
		return
	}

	view := &escrowDetailView{
		EscrowDetail:    detail,
		DepositLabel:    ShortLabel(detail.TypeSignature.Deposit),
		PaymentLabel:    ShortLabel(detail.TypeSignature.Payment),
		RequestedAmount: FormatAmount(detail.RequestedAmount),
		DepositAmount:   FormatAmount(detail.DepositBalance),
		SelfTrade:       detail.Creator != "" && detail.Creator == account.Address,
	}

	if !detail.TypeKnown {
		// raw type shown instead; type-dependent conveniences disabled
		view.DepositLabel = detail.RawType
		view.PaymentLabel = detail.RawType
		renderJSON(w, map[string]any{"escrow": view})
		return
	}

	coins, err := s.selector.ListCoins(ctx, account.Address, detail.TypeSignature.Payment)
	if err != nil {
		renderErr(w, twirp.NewError(twirp.Unavailable, "list payment coins failed, retry"))
		return
	}

	selected := s.pickerFor(account.Address).Refresh(coins)

	renderJSON(w, map[string]any{
		"escrow":                view,
		"payment_coins":         coins,
		"selected_payment_coin": selected,
	})
}

func renderDetectErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDetectionSuperseded):
		renderErr(w, twirp.NewError(twirp.Aborted, "superseded by a newer request"))
	case errors.Is(err, ErrEscrowNotFound):
		renderErr(w, twirp.NotFoundError("escrow does not resolve"))
	default:
		renderErr(w, twirp.NewError(twirp.Unavailable, "fetch escrow failed, retry"))
	}
}

func (s *Server) createEscrow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, ok := AccountFrom(ctx)
	if !ok {
		renderErr(w, twirp.Unauthenticated.Error("unauthenticated"))
		return
	}

	var body struct {
		DepositCoinID string `json:"deposit_coin_id"`
		DepositType   string `json:"deposit_type"`
		PaymentType   string `json:"payment_type"`
		Amount        string `json:"amount"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		renderErr(w, twirp.InvalidArgument.Error("invalid body"))
		return
	}

	amount, err := ParseDisplayAmount(body.Amount)
	if err != nil || amount == 0 {
		renderErr(w, twirp.InvalidArgumentError("amount", "invalid amount"))
		return
	}

	coins, err := s.selector.ListCoins(ctx, account.Address, body.DepositType)
	if err != nil {
		renderErr(w, twirp.NewError(twirp.Unavailable, "list coins failed, retry"))
		return
	}

	coin, found := FindCoin(coins, body.DepositCoinID)
	if body.DepositCoinID == "" {
		coin, found = SelectSpendCandidate(coins, amount)
	}
	if !found {
		renderErr(w, twirp.InvalidArgumentError("deposit_coin_id", ErrNoCoinSelected.Error()))
		return
	}

	cmd := NewCreateCommand(account.Address, coin, body.PaymentType, amount)
	intent, err := cmd.Build(s.Contract())
	if err != nil {
		renderErr(w, twirp.InvalidArgument.Error(err.Error()))
		return
	}

	renderJSON(w, map[string]any{"intent": intent})
}

func (s *Server) acceptEscrow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, ok := AccountFrom(ctx)
	if !ok {
		renderErr(w, twirp.Unauthenticated.Error("unauthenticated"))
		return
	}

	id := chi.URLParam(r, "id")
	if !IsAddress(id) {
		renderErr(w, twirp.InvalidArgumentError("id", "invalid object id"))
		return
	}

	var body struct {
		PaymentCoinID string `json:"payment_coin_id"`
	}

	// empty body means auto-select the payment coin
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		renderErr(w, twirp.InvalidArgument.Error("invalid body"))
		return
	}

	detail, err := s.detectorFor(account.Address).Detect(ctx, id)
	if err != nil {
		renderDetectErr(w, err)
		return
	}

	if !detail.TypeKnown {
		renderErr(w, twirp.InvalidArgumentError("id", "escrow type signature unavailable"))
		return
	}

	coins, err := s.selector.ListCoins(ctx, account.Address, detail.TypeSignature.Payment)
	if err != nil {
		renderErr(w, twirp.NewError(twirp.Unavailable, "list payment coins failed, retry"))
		return
	}

	coin, found := FindCoin(coins, body.PaymentCoinID)
	if body.PaymentCoinID == "" {
		coin, found = FindCoin(coins, s.pickerFor(account.Address).Refresh(coins))
	}
	if !found {
		coin, found = SelectSpendCandidate(coins, detail.RequestedAmount)
	}
	if !found {
		renderErr(w, twirp.InvalidArgumentError("payment_coin_id", ErrNoCoinSelected.Error()))
		return
	}

	cmd := NewAcceptCommand(account.Address, detail, coin)
	intent, err := cmd.Build(s.Contract())
	if err != nil {
		renderErr(w, twirp.InvalidArgument.Error(err.Error()))
		return
	}

	var warnings []string
	if cmd.SelfTrade() {
		warnings = append(warnings, "you are the creator of this escrow; accepting means swapping with yourself")
	}

	renderJSON(w, map[string]any{
		"intent":   intent,
		"warnings": warnings,
	})
}

func (s *Server) cancelEscrow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, ok := AccountFrom(ctx)
	if !ok {
		renderErr(w, twirp.Unauthenticated.Error("unauthenticated"))
		return
	}

	id := chi.URLParam(r, "id")
	if !IsAddress(id) {
		renderErr(w, twirp.InvalidArgumentError("id", "invalid object id"))
		return
	}

	detail, err := s.detectorFor(account.Address).Detect(ctx, id)
	if err != nil {
		renderDetectErr(w, err)
		return
	}

	if !detail.TypeKnown {
		renderErr(w, twirp.InvalidArgumentError("id", "escrow type signature unavailable"))
		return
	}

	cmd := NewCancelCommand(account.Address, detail)
	intent, err := cmd.Build(s.Contract())
	if err != nil {
		renderErr(w, twirp.InvalidArgument.Error(err.Error()))
		return
	}

	renderJSON(w, map[string]any{"intent": intent})
}

func (s *Server) listBalances(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, ok := AccountFrom(ctx)
	if !ok {
		renderErr(w, twirp.Unauthenticated.Error("unauthenticated"))
		return
	}

	balances, err := s.ListBalances(ctx, account.Address)
	if err != nil {
		slog.Error("list balances failed", "owner", account.Address, slog.Any("err", err))
		renderErr(w, twirp.NewError(twirp.Unavailable, "balances unavailable, retry"))
		return
	}

	renderJSON(w, map[string]any{"balances": balances})
}

func (s *Server) listCoins(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, ok := AccountFrom(ctx)
	if !ok {
		renderErr(w, twirp.Unauthenticated.Error("unauthenticated"))
		return
	}

	q := r.URL.Query()
	assetType := q.Get("asset")
	if assetType == "" {
		renderErr(w, twirp.InvalidArgumentError("asset", "required"))
		return
	}

	coins, cached := s.coins.Get(coinKey(account.Address, assetType))
	if !cached || cast.ToBool(q.Get("refresh")) {
		var err error
		coins, err = s.selector.ListCoins(ctx, account.Address, assetType)
		if err != nil {
			renderErr(w, twirp.NewError(twirp.Unavailable, "list coins failed, retry"))
			return
		}

		s.cacheCoins(account.Address, assetType, coins)
	}

	resp := map[string]any{"coins": coins}

	if min := cast.ToUint64(q.Get("min")); min > 0 {
		if candidate, ok := SelectSpendCandidate(coins, min); ok {
			resp["candidate"] = candidate
		}
	}

	renderJSON(w, resp)
}

func (s *Server) createTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, ok := AccountFrom(ctx)
	if !ok {
		renderErr(w, twirp.Unauthenticated.Error("unauthenticated"))
		return
	}

	var body struct {
		Recipient string `json:"recipient"`
		Amount    string `json:"amount"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		renderErr(w, twirp.InvalidArgument.Error("invalid body"))
		return
	}

	amount, err := ParseDisplayAmount(body.Amount)
	if err != nil || amount == 0 {
		renderErr(w, twirp.InvalidArgumentError("amount", "invalid amount"))
		return
	}

	cmd := TransferCommand{
		Owner:     account.Address,
		Recipient: body.Recipient,
		Amount:    amount,
	}

	intent, err := cmd.Build()
	if err != nil {
		renderErr(w, twirp.InvalidArgument.Error(err.Error()))
		return
	}

	renderJSON(w, map[string]any{"intent": intent})
}

func (s *Server) submitTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, ok := AccountFrom(ctx)
	if !ok {
		renderErr(w, twirp.Unauthenticated.Error("unauthenticated"))
		return
	}

	var body struct {
		TxBytes    string   `json:"tx_bytes"`
		Signatures []string `json:"signatures"`
		Action     string   `json:"action"`
		EscrowID   string   `json:"escrow_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		renderErr(w, twirp.InvalidArgument.Error("invalid body"))
		return
	}

	if body.TxBytes == "" || len(body.Signatures) == 0 {
		renderErr(w, twirp.InvalidArgumentError("tx_bytes", "signed transaction required"))
		return
	}

	if body.Action != "" && !govalidator.IsIn(body.Action, "create", "accept", "cancel", "transfer") {
		renderErr(w, twirp.InvalidArgumentError("action", "unknown action"))
		return
	}

	digest, err := s.ledger.Execute(ctx, body.TxBytes, body.Signatures)
	if err != nil {
		// contract-level rejection is a normal failure: surface it
		// verbatim and leave local state alone
		renderErr(w, twirp.NewError(twirp.FailedPrecondition, err.Error()))
		return
	}

	if err := s.ledger.WaitForTransaction(ctx, digest); err != nil {
		renderErr(w, twirp.NewError(twirp.Unavailable, "confirmation wait failed, re-fetch manually"))
		return
	}

	// confirmation does not mean reads see the effects yet; drop the
	// cached views so the next read re-fetches
	s.invalidate(account.Address)

	switch body.Action {
	case "accept":
		if body.EscrowID != "" {
			if err := s.db.Update(func(txn *badger.Txn) error {
				return markListingClosed(txn, account.Address, body.EscrowID)
			}); err != nil {
				slog.Error("mark escrow closed failed", slog.Any("err", err))
			}
		}
	case "create", "cancel":
		s.enqueueRefresh(account.Address)
	}

	renderJSON(w, map[string]any{"digest": digest})
}
