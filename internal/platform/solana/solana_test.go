package solana

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func TestParsePublicKey(t *testing.T) {
	pk, err := ParsePublicKey(usdcMint)
	require.NoError(t, err)
	assert.Equal(t, usdcMint, pk.String())

	assert.True(t, IsValidAddress(TokenProgramID))
	assert.False(t, IsValidAddress(""))
	assert.False(t, IsValidAddress("0OIl"))
	assert.False(t, IsValidAddress("abc"))

	_, err = ParsePublicKey("abc")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestAssociatedTokenAddress(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	var owner PublicKey
	copy(owner[:], pub)
	assert.True(t, owner.IsOnCurve())

	mint := MustPublicKey(usdcMint)
	tokenProgram := MustPublicKey(TokenProgramID)

	ata, err := AssociatedTokenAddress(owner, mint, tokenProgram)
	require.NoError(t, err)
	assert.False(t, ata.IsOnCurve())

	again, err := AssociatedTokenAddress(owner, mint, tokenProgram)
	require.NoError(t, err)
	assert.Equal(t, ata, again)

	other, err := AssociatedTokenAddress(owner, MustPublicKey(WrappedSOLMint), tokenProgram)
	require.NoError(t, err)
	assert.NotEqual(t, ata, other)

	t22, err := AssociatedTokenAddress(owner, mint, MustPublicKey(Token2022ProgramID))
	require.NoError(t, err)
	assert.NotEqual(t, ata, t22)
}

func TestShortVec(t *testing.T) {
	for _, n := range []int{0, 1, 127, 128, 300, 16383, 16384} {
		enc := encodeShortVec(n)
		got, size, err := decodeShortVec(enc)
		require.NoError(t, err)
		assert.Equal(t, n, got)
		assert.Equal(t, len(enc), size)
	}
	_, _, err := decodeShortVec([]byte{0x80})
	assert.Error(t, err)
}

// unsignedTx builds a minimal transaction with one empty signature slot whose
// fee payer is signer.
func unsignedTx(signer ed25519.PublicKey, versioned bool) (tx, msg []byte) {
	if versioned {
		msg = append(msg, 0x80)
	}
	msg = append(msg, 1, 0, 1)
	msg = append(msg, encodeShortVec(2)...)
	msg = append(msg, signer...)
	program := MustPublicKey(TokenProgramID)
	msg = append(msg, program[:]...)
	msg = append(msg, make([]byte, 32)...) // recent blockhash
	msg = append(msg, encodeShortVec(0)...)
	if versioned {
		msg = append(msg, encodeShortVec(0)...) // address table lookups
	}
	tx = append(tx, encodeShortVec(1)...)
	tx = append(tx, make([]byte, 64)...)
	tx = append(tx, msg...)
	return tx, msg
}

func TestSignTransaction(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	for _, versioned := range []bool{false, true} {
		tx, msg := unsignedTx(pub, versioned)
		signed, err := SignTransaction(tx, priv)
		require.NoError(t, err)
		require.Len(t, signed, len(tx))
		assert.True(t, ed25519.Verify(pub, msg, signed[1:65]), "versioned=%v", versioned)
		assert.Equal(t, make([]byte, 64), tx[1:65], "input modified")
	}
}

func TestSignTransactionWrongSigner(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	_, other, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	tx, _ := unsignedTx(pub, false)
	_, err = SignTransaction(tx, other)
	assert.ErrorIs(t, err, ErrSignerNotFound)

	_, err = SignTransaction([]byte{1, 0, 0}, other)
	assert.Error(t, err)
}

type rpcCall struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func rpcServer(t *testing.T, handle func(rpcCall) any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		require.NoError(t, json.NewDecoder(r.Body).Decode(&call))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(handle(call))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func result(v any) map[string]any {
	return map[string]any{"jsonrpc": "2.0", "id": 1, "result": v}
}

func TestClientQueries(t *testing.T) {
	var sent string
	srv := rpcServer(t, func(c rpcCall) any {
		switch c.Method {
		case "getBalance":
			return result(map[string]any{"context": map[string]int{"slot": 1}, "value": 2_500_000_000})
		case "getTokenSupply":
			return result(map[string]any{"value": map[string]any{"amount": "1000000000", "decimals": 6, "uiAmountString": "1000"}})
		case "getTokenAccountBalance":
			return result(map[string]any{"value": map[string]any{"amount": "42000000", "decimals": 6}})
		case "getAccountInfo":
			return result(map[string]any{"value": map[string]any{"owner": TokenProgramID, "lamports": 1}})
		case "sendTransaction":
			require.NoError(t, json.Unmarshal(c.Params[0], &sent))
			return result("5igSig")
		}
		return map[string]any{"jsonrpc": "2.0", "id": 1, "error": map[string]any{"code": -32601, "message": "method not found"}}
	})

	c := NewClient(srv.URL, "", time.Second)
	ctx := context.Background()

	lamports, err := c.GetBalance(ctx, usdcMint)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_500_000_000), lamports)

	supply, err := c.GetTokenSupply(ctx, usdcMint)
	require.NoError(t, err)
	assert.Equal(t, 6, supply.Decimals)

	bal, err := c.GetTokenAccountBalance(ctx, usdcMint)
	require.NoError(t, err)
	raw, err := bal.Raw()
	require.NoError(t, err)
	assert.Equal(t, uint64(42_000_000), raw)

	owner, err := c.GetAccountOwner(ctx, usdcMint)
	require.NoError(t, err)
	assert.Equal(t, TokenProgramID, owner)

	sig, err := c.SendTransaction(ctx, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, "5igSig", sig)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), sent)

	_, err = c.GetSignatureStatuses(ctx, []string{"x"})
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32601, rpcErr.Code)
}

func TestWaitForConfirmation(t *testing.T) {
	var calls atomic.Int32
	srv := rpcServer(t, func(c rpcCall) any {
		if calls.Add(1) < 3 {
			return result(map[string]any{"value": []any{nil}})
		}
		return result(map[string]any{"value": []any{map[string]any{"slot": 9, "err": nil, "confirmationStatus": "finalized"}}})
	})
	c := NewClient(srv.URL, "confirmed", time.Second)
	require.NoError(t, c.WaitForConfirmation(context.Background(), "sig", time.Millisecond))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWaitForConfirmationFailed(t *testing.T) {
	srv := rpcServer(t, func(c rpcCall) any {
		return result(map[string]any{"value": []any{map[string]any{"slot": 9, "err": map[string]any{"InstructionError": []any{0, "Custom"}}, "confirmationStatus": "confirmed"}}})
	})
	c := NewClient(srv.URL, "confirmed", time.Second)
	err := c.WaitForConfirmation(context.Background(), "sig", time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
}

func TestWaitForConfirmationContext(t *testing.T) {
	srv := rpcServer(t, func(c rpcCall) any {
		return result(map[string]any{"value": []any{nil}})
	})
	c := NewClient(srv.URL, "confirmed", time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.WaitForConfirmation(ctx, "sig", 5*time.Millisecond), context.DeadlineExceeded)
}
