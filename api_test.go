package escrowd

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonpact/escrowd/suirpc"
)

var testSecret = []byte("test-secret")

func newTestServer(t *testing.T, ledger Ledger) *Server {
	t.Helper()

	return NewServer(testDB(t), ledger, Config{
		PackageID:  testPackageID,
		CoinTypes:  []string{coinTypeA, coinTypeB},
		Issuer:     "escrowd",
		JWTSecret:  testSecret,
		ListingTTL: time.Minute,
	})
}

func authToken(t *testing.T, address string) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
		Subject:   address,
		Issuer:    "escrowd",
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)
	return token
}

func doRequest(t *testing.T, h http.Handler, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, target, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestAPIAuthRequired(t *testing.T) {
	h := newTestServer(t, newFakeLedger()).Handler()

	rec := doRequest(t, h, http.MethodGet, "/balances", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIAuthWrongIssuer(t *testing.T) {
	h := newTestServer(t, newFakeLedger()).Handler()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
		Subject:   testOwner,
		Issuer:    "somebody-else",
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)

	rec := doRequest(t, h, http.MethodGet, "/balances", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIListEscrows(t *testing.T) {
	ledger := newFakeLedger()
	ledger.txs = []*suirpc.TransactionRecord{
		createTxRecord("TX1", "0xe5c1", 5_000_000_000, testSig),
	}
	ledger.objects["0xe5c1"] = escrowSnapshot("0xe5c1", testSig, 5_000_000_000, testOwner)

	svr := newTestServer(t, ledger)
	h := svr.Handler()
	token := authToken(t, testOwner)

	rec := doRequest(t, h, http.MethodGet, "/escrows", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Escrows []*escrowView `json:"escrows"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Escrows, 1)
	assert.Equal(t, "0xe5c1", resp.Escrows[0].ID)
	assert.Equal(t, EscrowOpen, resp.Escrows[0].Status)
	assert.Equal(t, "5.00", resp.Escrows[0].RequestedAmount)
	assert.Equal(t, "SUI", resp.Escrows[0].DepositLabel)
	assert.Equal(t, "MOCK_ZSUI", resp.Escrows[0].PaymentLabel)
	assert.Equal(t, 1, ledger.queryCalls)

	// second read serves the cached listing and queues a background
	// refresh instead of hitting the ledger inline
	rec = doRequest(t, h, http.MethodGet, "/escrows", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ledger.queryCalls)

	jobs, err := ListJobs(svr.db)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, testOwner, jobs[0].Owner)

	// explicit refresh bypasses the cache
	rec = doRequest(t, h, http.MethodGet, "/escrows?refresh=1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, ledger.queryCalls)
}

func TestAPIGetEscrow(t *testing.T) {
	ledger := newFakeLedger()
	ledger.objects["0xe5c1"] = escrowSnapshot("0xe5c1", testSig, 5_000_000_000, "0xcafe")
	ledger.coins[testOwner+"|"+coinTypeB] = []*suirpc.Coin{
		{CoinType: coinTypeB, CoinObjectID: "0xc01", Balance: 9_000_000_000},
	}

	h := newTestServer(t, ledger).Handler()

	rec := doRequest(t, h, http.MethodGet, "/escrows/0xe5c1", authToken(t, testOwner), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Escrow struct {
			ID              string `json:"id"`
			TypeKnown       bool   `json:"type_known"`
			RequestedAmount string `json:"requested_display"`
			DepositAmount   string `json:"deposit_display"`
			SelfTrade       bool   `json:"self_trade"`
		} `json:"escrow"`
		PaymentCoins        []CoinHandle `json:"payment_coins"`
		SelectedPaymentCoin string       `json:"selected_payment_coin"`
	}
	decodeBody(t, rec, &resp)

	assert.Equal(t, "0xe5c1", resp.Escrow.ID)
	assert.True(t, resp.Escrow.TypeKnown)
	assert.Equal(t, "5.00", resp.Escrow.RequestedAmount)
	assert.Equal(t, "5.00", resp.Escrow.DepositAmount)
	assert.False(t, resp.Escrow.SelfTrade)
	require.Len(t, resp.PaymentCoins, 1)
	assert.Equal(t, "0xc01", resp.SelectedPaymentCoin)
}

func TestAPIGetEscrowNotFound(t *testing.T) {
	h := newTestServer(t, newFakeLedger()).Handler()

	rec := doRequest(t, h, http.MethodGet, "/escrows/0xdead", authToken(t, testOwner), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIGetEscrowUnparsableType(t *testing.T) {
	ledger := newFakeLedger()
	ledger.objects["0xe5c1"] = &suirpc.ObjectSnapshot{
		ObjectID: "0xe5c1",
		Type:     "0x2::coin::Coin<0x2::sui::SUI>",
		Fields:   map[string]any{"requested_amount": "5000000000"},
	}

	h := newTestServer(t, ledger).Handler()

	rec := doRequest(t, h, http.MethodGet, "/escrows/0xe5c1", authToken(t, testOwner), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Escrow struct {
			TypeKnown    bool   `json:"type_known"`
			RawType      string `json:"raw_type"`
			DepositLabel string `json:"deposit_label"`
		} `json:"escrow"`
		PaymentCoins []CoinHandle `json:"payment_coins"`
	}
	decodeBody(t, rec, &resp)

	// unparsable type degrades to the raw string and skips coin listing
	assert.False(t, resp.Escrow.TypeKnown)
	assert.Equal(t, "0x2::coin::Coin<0x2::sui::SUI>", resp.Escrow.RawType)
	assert.Equal(t, resp.Escrow.RawType, resp.Escrow.DepositLabel)
	assert.Nil(t, resp.PaymentCoins)
}

type intentResponse struct {
	Intent   *suirpc.TransactionIntent `json:"intent"`
	Warnings []string                  `json:"warnings"`
}

func TestAPICreateEscrow(t *testing.T) {
	ledger := newFakeLedger()
	ledger.coins[testOwner+"|"+coinTypeA] = []*suirpc.Coin{
		{CoinType: coinTypeA, CoinObjectID: "0xc01", Balance: 1_000_000_000},
		{CoinType: coinTypeA, CoinObjectID: "0xc02", Balance: 9_000_000_000},
	}

	h := newTestServer(t, ledger).Handler()

	body := map[string]any{
		"deposit_type": coinTypeA,
		"payment_type": coinTypeB,
		"amount":       "5.0",
	}
	rec := doRequest(t, h, http.MethodPost, "/escrows", authToken(t, testOwner), body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp intentResponse
	decodeBody(t, rec, &resp)
	require.NotNil(t, resp.Intent)
	require.Len(t, resp.Intent.Commands, 2)

	// no coin named: the first sufficient coin is picked
	assert.Equal(t, "0xc02", resp.Intent.Inputs[0].ObjectID)

	call := resp.Intent.Commands[1].MoveCall
	require.NotNil(t, call)
	assert.Equal(t, "create_escrow", call.Function)
	assert.Equal(t, []string{coinTypeA, coinTypeB}, call.TypeArguments)
}

func TestAPICreateEscrowInsufficient(t *testing.T) {
	ledger := newFakeLedger()
	ledger.coins[testOwner+"|"+coinTypeA] = []*suirpc.Coin{
		{CoinType: coinTypeA, CoinObjectID: "0xc01", Balance: 1_000_000_000},
	}

	h := newTestServer(t, ledger).Handler()

	body := map[string]any{
		"deposit_type": coinTypeA,
		"payment_type": coinTypeB,
		"amount":       "5.0",
	}
	rec := doRequest(t, h, http.MethodPost, "/escrows", authToken(t, testOwner), body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIAcceptEscrow(t *testing.T) {
	ledger := newFakeLedger()
	ledger.objects["0xe5c1"] = escrowSnapshot("0xe5c1", testSig, 5_000_000_000, "0xcafe")
	ledger.coins[testOwner+"|"+coinTypeB] = []*suirpc.Coin{
		{CoinType: coinTypeB, CoinObjectID: "0xc01", Balance: 9_000_000_000},
	}

	h := newTestServer(t, ledger).Handler()

	// empty body: the payment coin is auto-selected
	rec := doRequest(t, h, http.MethodPost, "/escrows/0xe5c1/accept", authToken(t, testOwner), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp intentResponse
	decodeBody(t, rec, &resp)
	require.NotNil(t, resp.Intent)
	require.Len(t, resp.Intent.Commands, 2)
	assert.Empty(t, resp.Warnings)

	call := resp.Intent.Commands[1].MoveCall
	require.NotNil(t, call)
	assert.Equal(t, "accept_escrow", call.Function)
	assert.Equal(t, "0xe5c1", resp.Intent.Inputs[2].ObjectID)
}

func TestAPIAcceptEscrowSelfTradeWarning(t *testing.T) {
	ledger := newFakeLedger()
	ledger.objects["0xe5c1"] = escrowSnapshot("0xe5c1", testSig, 5_000_000_000, testOwner)
	ledger.coins[testOwner+"|"+coinTypeB] = []*suirpc.Coin{
		{CoinType: coinTypeB, CoinObjectID: "0xc01", Balance: 9_000_000_000},
	}

	h := newTestServer(t, ledger).Handler()

	rec := doRequest(t, h, http.MethodPost, "/escrows/0xe5c1/accept", authToken(t, testOwner), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp intentResponse
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "swapping with yourself")
}

func TestAPIAcceptEscrowNoCoin(t *testing.T) {
	ledger := newFakeLedger()
	ledger.objects["0xe5c1"] = escrowSnapshot("0xe5c1", testSig, 5_000_000_000, "0xcafe")

	h := newTestServer(t, ledger).Handler()

	rec := doRequest(t, h, http.MethodPost, "/escrows/0xe5c1/accept", authToken(t, testOwner), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPICancelEscrow(t *testing.T) {
	ledger := newFakeLedger()
	ledger.objects["0xe5c1"] = escrowSnapshot("0xe5c1", testSig, 5_000_000_000, testOwner)

	h := newTestServer(t, ledger).Handler()

	rec := doRequest(t, h, http.MethodPost, "/escrows/0xe5c1/cancel", authToken(t, testOwner), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp intentResponse
	decodeBody(t, rec, &resp)
	require.NotNil(t, resp.Intent)
	require.Len(t, resp.Intent.Commands, 1)
	assert.Equal(t, "cancel_escrow", resp.Intent.Commands[0].MoveCall.Function)
}

func TestAPIListBalances(t *testing.T) {
	ledger := newFakeLedger()
	ledger.balances[testOwner+"|"+coinTypeA] = 12_340_000_000
	ledger.balances[testOwner+"|"+coinTypeB] = 500_000_000

	h := newTestServer(t, ledger).Handler()

	rec := doRequest(t, h, http.MethodGet, "/balances", authToken(t, testOwner), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Balances []*AssetBalance `json:"balances"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Balances, 2)
	assert.Equal(t, "SUI", resp.Balances[0].Label)
	assert.Equal(t, "12.34", resp.Balances[0].Display)
	assert.Equal(t, "MOCK_ZSUI", resp.Balances[1].Label)
	assert.Equal(t, "0.50", resp.Balances[1].Display)
}

func TestAPIListCoins(t *testing.T) {
	ledger := newFakeLedger()
	ledger.coins[testOwner+"|"+coinTypeA] = []*suirpc.Coin{
		{CoinType: coinTypeA, CoinObjectID: "0xc01", Balance: 1_000_000_000},
		{CoinType: coinTypeA, CoinObjectID: "0xc02", Balance: 9_000_000_000},
	}

	h := newTestServer(t, ledger).Handler()
	token := authToken(t, testOwner)

	rec := doRequest(t, h, http.MethodGet, "/coins?asset="+coinTypeA+"&min=5000000000", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Coins     []CoinHandle `json:"coins"`
		Candidate *CoinHandle  `json:"candidate"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Coins, 2)
	require.NotNil(t, resp.Candidate)
	assert.Equal(t, "0xc02", resp.Candidate.ObjectID)

	rec = doRequest(t, h, http.MethodGet, "/coins", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPICreateTransfer(t *testing.T) {
	h := newTestServer(t, newFakeLedger()).Handler()
	token := authToken(t, testOwner)

	body := map[string]any{"recipient": "0xb0b", "amount": "1.5"}
	rec := doRequest(t, h, http.MethodPost, "/transfers", token, body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp intentResponse
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Intent.Commands, 2)

	split := resp.Intent.Commands[0].SplitCoins
	require.NotNil(t, split)
	assert.True(t, split.Coin.GasCoin)
	require.NotNil(t, resp.Intent.Commands[1].TransferObjects)

	body = map[string]any{"recipient": "not-an-address", "amount": "1.5"}
	rec = doRequest(t, h, http.MethodPost, "/transfers", token, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPISubmitTransactionAccept(t *testing.T) {
	ledger := newFakeLedger()
	svr := newTestServer(t, ledger)
	h := svr.Handler()

	require.NoError(t, svr.db.Update(func(txn *badger.Txn) error {
		return saveListing(txn, testListing(testOwner), time.Minute)
	}))

	body := map[string]any{
		"tx_bytes":   "AAAA",
		"signatures": []string{"sig1"},
		"action":     "accept",
		"escrow_id":  "0xe5c1",
	}
	rec := doRequest(t, h, http.MethodPost, "/transactions", authToken(t, testOwner), body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Digest string `json:"digest"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, "FAKEDIGEST", resp.Digest)

	// the accepted escrow flips to Closed in the cached listing
	listing, err := FindListing(svr.db, testOwner)
	require.NoError(t, err)
	require.NotNil(t, listing)
	assert.Equal(t, EscrowClosed, listing.Escrows[0].Status)
}

func TestAPISubmitTransactionCreateQueuesRefresh(t *testing.T) {
	svr := newTestServer(t, newFakeLedger())
	h := svr.Handler()

	body := map[string]any{
		"tx_bytes":   "AAAA",
		"signatures": []string{"sig1"},
		"action":     "create",
	}
	rec := doRequest(t, h, http.MethodPost, "/transactions", authToken(t, testOwner), body)
	require.Equal(t, http.StatusOK, rec.Code)

	jobs, err := ListJobs(svr.db)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, testOwner, jobs[0].Owner)
}

func TestAPISubmitTransactionRejected(t *testing.T) {
	ledger := newFakeLedger()
	ledger.executeErr = errors.New("MoveAbort: escrow already accepted")
	svr := newTestServer(t, ledger)
	h := svr.Handler()

	require.NoError(t, svr.db.Update(func(txn *badger.Txn) error {
		return saveListing(txn, testListing(testOwner), time.Minute)
	}))

	body := map[string]any{
		"tx_bytes":   "AAAA",
		"signatures": []string{"sig1"},
		"action":     "accept",
		"escrow_id":  "0xe5c1",
	}
	rec := doRequest(t, h, http.MethodPost, "/transactions", authToken(t, testOwner), body)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Contains(t, rec.Body.String(), "MoveAbort: escrow already accepted")

	// rejection leaves local state alone
	listing, err := FindListing(svr.db, testOwner)
	require.NoError(t, err)
	assert.Equal(t, EscrowOpen, listing.Escrows[0].Status)
}

func TestAPISubmitTransactionValidation(t *testing.T) {
	h := newTestServer(t, newFakeLedger()).Handler()
	token := authToken(t, testOwner)

	rec := doRequest(t, h, http.MethodPost, "/transactions", token, map[string]any{
		"tx_bytes": "AAAA",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/transactions", token, map[string]any{
		"tx_bytes":   "AAAA",
		"signatures": []string{"sig1"},
		"action":     "detonate",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
