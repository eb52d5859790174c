package rpcclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/nspcc-dev/wsbitcoin-go/pkg/btcrpc"
	"github.com/stretchr/testify/require"
)

func TestGetEndpoint(t *testing.T) {
	host := "http://localhost:1234"
	u, err := url.Parse(host)
	require.NoError(t, err)
	client := Client{
		endpoint: u,
	}
	require.Equal(t, host, client.Endpoint())
}

// initTestServer starts a node stub replying with the given raw response
// body and HTTP code, each received request is passed to the check callback.
func initTestServer(t *testing.T, code int, resp string, check func(*http.Request, *btcrpc.Request)) *Client {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		req := new(btcrpc.Request)
		require.NoError(t, json.Unmarshal(body, req))
		if check != nil {
			check(r, req)
		}
		w.WriteHeader(code)
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), srv.URL, Options{User: "user", Password: "pass"})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestListUnspent(t *testing.T) {
	c := initTestServer(t, http.StatusOK,
		`{"result":[{"txid":"t1","vout":0,"account":"alice","amount":1.5,"confirmations":6},{"txid":"t2","vout":1,"label":"bob","amount":0.1,"confirmations":9}],"error":null,"id":1}`,
		func(r *http.Request, req *btcrpc.Request) {
			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			require.Equal(t, "user", user)
			require.Equal(t, "pass", pass)
			require.Equal(t, "listunspent", req.Method)
			require.Equal(t, btcrpc.JSONRPCVersion, req.JSONRPC)
			require.Equal(t, 1, len(req.Params))
			require.Equal(t, "6", string(req.Params[0]))
		})
	res, err := c.ListUnspent(context.Background(), 6)
	require.NoError(t, err)
	require.Equal(t, 2, len(res))
	require.Equal(t, "t1", res[0].TxID)
	require.Equal(t, "alice", res[0].AccountName())
	require.Equal(t, "bob", res[1].AccountName())
}

func TestGetTransaction(t *testing.T) {
	c := initTestServer(t, http.StatusOK,
		`{"result":{"txid":"t1","amount":1.5,"confirmations":6,"time":1369160000,"details":[{"account":"alice","category":"receive","amount":1.5}]},"error":null,"id":1}`,
		func(_ *http.Request, req *btcrpc.Request) {
			require.Equal(t, "gettransaction", req.Method)
			require.Equal(t, `"t1"`, string(req.Params[0]))
		})
	tx, err := c.GetTransaction(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, "t1", tx.TxID)
	require.Equal(t, "alice", tx.AccountName())
}

func TestGetBlockCount(t *testing.T) {
	c := initTestServer(t, http.StatusOK, `{"result":812345,"error":null,"id":1}`,
		func(_ *http.Request, req *btcrpc.Request) {
			require.Equal(t, "getblockcount", req.Method)
			require.Equal(t, 0, len(req.Params))
		})
	height, err := c.GetBlockCount(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(812345), height)
}

func TestNodeError(t *testing.T) {
	c := initTestServer(t, http.StatusInternalServerError,
		`{"result":null,"error":{"code":-5,"message":"Invalid or non-wallet transaction id"},"id":1}`, nil)
	_, err := c.GetTransaction(context.Background(), "nope")
	require.Error(t, err)

	var (
		gwErr   *GatewayError
		nodeErr *btcrpc.Error
	)
	require.True(t, errors.As(err, &gwErr))
	require.Equal(t, "gettransaction", gwErr.Method)
	require.True(t, errors.As(err, &nodeErr))
	require.Equal(t, int64(-5), nodeErr.Code)
}

func TestHTTPError(t *testing.T) {
	c := initTestServer(t, http.StatusUnauthorized, ``, nil)
	_, err := c.ListUnspent(context.Background(), 1)
	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	require.Contains(t, err.Error(), "HTTP 401")
}

func TestCallRaw(t *testing.T) {
	c := initTestServer(t, http.StatusOK, `{"result":{"balance":42},"error":null,"id":1}`,
		func(_ *http.Request, req *btcrpc.Request) {
			require.Equal(t, "getbalance", req.Method)
			require.Equal(t, 2, len(req.Params))
			require.Equal(t, `"alice"`, string(req.Params[0]))
		})
	res, err := c.Call(context.Background(), "getbalance", []json.RawMessage{json.RawMessage(`"alice"`), json.RawMessage(`6`)})
	require.NoError(t, err)
	require.JSONEq(t, `{"balance":42}`, string(res))
}

func TestCallNullResult(t *testing.T) {
	c := initTestServer(t, http.StatusOK, `{"result":null,"error":null,"id":1}`, func(_ *http.Request, req *btcrpc.Request) {
		require.NotNil(t, req.Params)
	})
	res, err := c.Call(context.Background(), "walletlock", nil)
	require.NoError(t, err)
	require.Equal(t, "null", string(res))
}

func TestBadCACert(t *testing.T) {
	_, err := New(context.Background(), "https://localhost:8332", Options{CACert: filepath.Join(t.TempDir(), "missing.pem")})
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a cert"), 0644))
	_, err = New(context.Background(), "https://localhost:8332", Options{CACert: bad})
	require.Error(t, err)
}

func TestCommands(t *testing.T) {
	require.True(t, IsCommand("getbalance"))
	require.True(t, IsCommand("GetBalance"))
	require.False(t, IsCommand("subscribenewtx"))
	require.False(t, IsCommand(""))

	cmds := Commands()
	require.Contains(t, cmds, "listunspent")
	for i := 1; i < len(cmds); i++ {
		require.True(t, cmds[i-1] < cmds[i])
	}
}
