/*
Package relay implements the websocket relay service. It accepts apiCall
requests from websocket clients, serves internal actions, forwards ledger
node commands to the node and delivers new transaction notifications to
subscribed clients.
*/
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nspcc-dev/wsbitcoin-go/pkg/btcrpc"
	"github.com/nspcc-dev/wsbitcoin-go/pkg/config"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type (
	// Forwarder executes ledger node commands.
	Forwarder interface {
		Call(ctx context.Context, method string, params []json.RawMessage) (json.RawMessage, error)
	}

	// Server is a websocket relay server.
	Server struct {
		http  []*http.Server
		https []*http.Server

		config   config.RPC
		fwd      Forwarder
		upgrader websocket.Upgrader
		actions  *actionSet
		groups   *groups
		log      *zap.Logger

		shutdown chan struct{}
		started  *atomic.Bool
		errChan  chan error

		sessionsLock sync.RWMutex
		sessions     map[string]*session
	}
)

const (
	// Disconnection timeout.
	wsPongLimit = 60 * time.Second

	// Ping period for connection liveness check.
	wsPingPeriod = wsPongLimit / 2

	// Write deadline.
	wsWriteLimit = wsPingPeriod / 2

	// Maximum size of an incoming websocket message.
	wsReadLimit = 4 * 1024 * 1024

	// Size of the per-session notification buffer, notifications that don't
	// fit are dropped.
	notificationBufSize = 1024
)

// New creates a new Server. Fatal errors happening after Start are sent to
// errChan.
func New(conf config.RPC, fwd Forwarder, log *zap.Logger, errChan chan error) *Server {
	log = log.With(zap.String("service", "relay"))
	if conf.MaxWebSocketClients == 0 {
		conf.MaxWebSocketClients = config.DefaultMaxWebSocketClients
		log.Info("MaxWebSocketClients is not set or wrong, setting default value", zap.Int("MaxWebSocketClients", config.DefaultMaxWebSocketClients))
	}
	if conf.RequestTimeout <= 0 {
		conf.RequestTimeout = config.DefaultRequestTimeout
	}
	var wsOriginChecker func(*http.Request) bool
	if conf.EnableCORSWorkaround {
		wsOriginChecker = func(_ *http.Request) bool { return true }
	}

	addrs := conf.GetAddresses()
	httpServers := make([]*http.Server, len(addrs))
	for i, addr := range addrs {
		httpServers[i] = &http.Server{
			Addr: addr,
		}
	}
	var tlsServers []*http.Server
	if cfg := conf.TLSConfig; cfg.Enabled {
		addrs := cfg.GetAddresses()
		tlsServers = make([]*http.Server, len(addrs))
		for i, addr := range addrs {
			tlsServers[i] = &http.Server{
				Addr: addr,
			}
		}
	}

	return &Server{
		http:     httpServers,
		https:    tlsServers,
		config:   conf,
		fwd:      fwd,
		upgrader: websocket.Upgrader{CheckOrigin: wsOriginChecker},
		actions:  newActionSet(),
		groups:   newGroups(log),
		log:      log,
		shutdown: make(chan struct{}),
		started:  atomic.NewBool(false),
		errChan:  errChan,
		sessions: make(map[string]*session),
	}
}

// Name returns service name.
func (s *Server) Name() string {
	return "relay"
}

// Start starts listening on all configured addresses. Errors are returned via
// errChan passed to New. The Server only starts once, subsequent calls to
// Start are no-op.
func (s *Server) Start() {
	if !s.config.Enabled {
		s.log.Info("relay server is not enabled")
		return
	}
	if !s.started.CompareAndSwap(false, true) {
		s.log.Info("relay server already started")
		return
	}
	for _, srv := range s.http {
		srv.Handler = http.HandlerFunc(s.handleHTTPRequest)
		s.log.Info("starting relay server", zap.String("endpoint", srv.Addr))
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			s.errChan <- fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
			return
		}
		srv.Addr = ln.Addr().String() // set Addr to the actual address
		go func(srv *http.Server) {
			err := srv.Serve(ln)
			if !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("failed to start relay server", zap.Error(err))
				s.errChan <- err
			}
		}(srv)
	}
	cfg := s.config.TLSConfig
	for _, srv := range s.https {
		srv.Handler = http.HandlerFunc(s.handleHTTPRequest)
		s.log.Info("starting relay server (https)", zap.String("endpoint", srv.Addr))
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			s.errChan <- fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
			return
		}
		srv.Addr = ln.Addr().String()
		go func(srv *http.Server) {
			err := srv.ServeTLS(ln, cfg.CertFile, cfg.KeyFile)
			if !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("failed to start TLS relay server", zap.Error(err))
				s.errChan <- err
			}
		}(srv)
	}
}

// Addresses returns the list of addresses the Server listens on (actual ones
// after Start).
func (s *Server) Addresses() []string {
	res := make([]string, 0, len(s.http)+len(s.https))
	for _, srv := range s.http {
		res = append(res, srv.Addr)
	}
	for _, srv := range s.https {
		res = append(res, srv.Addr)
	}
	return res
}

// Shutdown stops the Server closing all websocket connections. It can only be
// called once, the instance that was stopped can't be started again.
func (s *Server) Shutdown() {
	if !s.started.CompareAndSwap(true, false) {
		return
	}
	// Signal to websocket writer routines.
	close(s.shutdown)

	for _, srv := range s.https {
		s.log.Info("shutting down relay server (https)", zap.String("endpoint", srv.Addr))
		if err := srv.Shutdown(context.Background()); err != nil {
			s.log.Warn("error during relay (https) server shutdown", zap.Error(err))
		}
	}
	for _, srv := range s.http {
		s.log.Info("shutting down relay server", zap.String("endpoint", srv.Addr))
		if err := srv.Shutdown(context.Background()); err != nil {
			s.log.Warn("error during relay (http) server shutdown", zap.Error(err))
		}
	}
}

// SessionCount returns the number of connected websocket clients.
func (s *Server) SessionCount() int {
	s.sessionsLock.RLock()
	defer s.sessionsLock.RUnlock()
	return len(s.sessions)
}

// BroadcastToGroup sends the event to every session subscribed to the group.
// It never blocks, sessions that are too slow lose the event.
func (s *Server) BroadcastToGroup(groupID string, event string, payload any) {
	n := s.groups.broadcast(groupID, event, payload)
	s.log.Debug("event broadcasted",
		zap.String("group", groupID),
		zap.String("event", event),
		zap.Int("sessions", n))
}

func (s *Server) handleHTTPRequest(w http.ResponseWriter, httpRequest *http.Request) {
	if httpRequest.URL.Path == "/ws" && httpRequest.Method == http.MethodGet {
		// There is a tiny race between this check and sessions
		// registration, some additional clients may sneak in.
		s.sessionsLock.RLock()
		numOfSessions := len(s.sessions)
		s.sessionsLock.RUnlock()
		if numOfSessions >= s.config.MaxWebSocketClients {
			s.writeHTTPError(w, http.StatusServiceUnavailable,
				btcrpc.NewInternalServerError("websocket users limit reached"))
			return
		}
		ws, err := s.upgrader.Upgrade(w, httpRequest, nil)
		if err != nil {
			s.log.Info("websocket connection upgrade failed", zap.Error(err))
			return
		}
		sess := newSession(uuid.NewString())
		s.sessionsLock.Lock()
		s.sessions[sess.id] = sess
		s.sessionsLock.Unlock()
		wsClients.Inc()
		s.log.Debug("websocket session started",
			zap.String("session", sess.id),
			zap.String("remote", httpRequest.RemoteAddr))

		resChan := make(chan *btcrpc.Message)
		go s.handleWsWrites(ws, resChan, sess.writer)
		s.handleWsReads(ws, resChan, sess)
		return
	}

	if httpRequest.Method == http.MethodOptions && s.config.EnableCORSWorkaround { // Preflight CORS.
		setCORSOriginHeaders(w.Header())
		w.Header().Set("Access-Control-Allow-Methods", "GET") // GET for websockets.
		w.Header().Set("Access-Control-Max-Age", "21600")     // 6 hours.
		return
	}

	if httpRequest.URL.Path != "/ws" {
		s.writeHTTPError(w, http.StatusNotFound,
			btcrpc.NewMethodNotFoundError(fmt.Sprintf("path %q not found", escapeForLog(httpRequest.URL.Path))))
		return
	}
	s.writeHTTPError(w, http.StatusMethodNotAllowed,
		btcrpc.NewInvalidRequestError(fmt.Sprintf("invalid method '%s', please retry with 'GET'", escapeForLog(httpRequest.Method))))
}

func (s *Server) handleWsWrites(ws *websocket.Conn, resChan <-chan *btcrpc.Message, subChan <-chan *websocket.PreparedMessage) {
	pingTicker := time.NewTicker(wsPingPeriod)
eventloop:
	for {
		select {
		case <-s.shutdown:
			break eventloop
		case event := <-subChan:
			if err := ws.SetWriteDeadline(time.Now().Add(wsWriteLimit)); err != nil {
				break eventloop
			}
			if err := ws.WritePreparedMessage(event); err != nil {
				break eventloop
			}
		case res, ok := <-resChan:
			if !ok {
				break eventloop
			}
			if err := ws.SetWriteDeadline(time.Now().Add(wsWriteLimit)); err != nil {
				break eventloop
			}
			if err := ws.WriteJSON(res); err != nil {
				break eventloop
			}
		case <-pingTicker.C:
			if err := ws.SetWriteDeadline(time.Now().Add(wsWriteLimit)); err != nil {
				break eventloop
			}
			if err := ws.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				break eventloop
			}
		}
	}
	ws.Close()
	pingTicker.Stop()
	// Drain notification channel as there might be some events queued.
drainloop:
	for {
		select {
		case <-subChan:
		default:
			break drainloop
		}
	}
}

func (s *Server) handleWsReads(ws *websocket.Conn, resChan chan<- *btcrpc.Message, sess *session) {
	ws.SetReadLimit(wsReadLimit)
	err := ws.SetReadDeadline(time.Now().Add(wsPongLimit))
	ws.SetPongHandler(func(string) error { return ws.SetReadDeadline(time.Now().Add(wsPongLimit)) })
requestloop:
	for err == nil {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		res := s.handleMessage(data, sess)
		select {
		case <-s.shutdown:
			break requestloop
		case resChan <- res:
		}
	}

	s.log.Debug("websocket session closed", zap.String("session", sess.id))
	s.groups.leaveAll(sess)
	s.sessionsLock.Lock()
	delete(s.sessions, sess.id)
	s.sessionsLock.Unlock()
	wsClients.Dec()
	close(resChan)
	ws.Close()
}

// handleMessage processes a single inbound envelope and returns a reply to it.
func (s *Server) handleMessage(data []byte, sess *session) *btcrpc.Message {
	var msg btcrpc.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return s.packError(nil, btcrpc.NewParseError(err.Error()))
	}
	if msg.Event != btcrpc.APICallEvent {
		return s.packError(nil, btcrpc.NewMethodNotFoundError(
			fmt.Sprintf("event %q not supported", escapeForLog(msg.Event))))
	}
	var call btcrpc.APICall
	if len(msg.Data) == 0 {
		return s.packError(&call, btcrpc.ErrInvalidAction)
	}
	if err := json.Unmarshal(msg.Data, &call); err != nil {
		if errors.Is(err, btcrpc.ErrInvalidAction) {
			return s.packError(&call, btcrpc.ErrInvalidAction)
		}
		return s.packError(&call, btcrpc.NewParseError(err.Error()))
	}
	call.Action = escapeForLog(call.Action) // No valid action name will be changed by it.
	return s.handleCall(&call, sess)
}

func (s *Server) handleCall(call *btcrpc.APICall, sess *session) *btcrpc.Message {
	s.log.Debug("processing api call",
		zap.String("session", sess.id),
		zap.String("action", call.Action),
		zap.Int("args", len(call.Args)))

	act, ok := s.actions.resolve(call.Action)
	if !ok {
		addReqTimeMetric(unknownAction, 0)
		return s.packError(call, btcrpc.NewMethodNotFoundError(
			fmt.Sprintf("action %q not supported", call.Action)))
	}

	start := time.Now()
	defer func() { addReqTimeMetric(act.name, time.Since(start)) }()

	var (
		res    any
		resErr *btcrpc.Error
	)
	if act.Forwarded() {
		res, resErr = s.forward(act.name, call.Args)
	} else {
		res, resErr = act.handler(s, sess, call.Args)
	}
	if resErr != nil {
		return s.packError(call, resErr)
	}
	return s.packResponse(call, res)
}

// forward executes the call on the ledger node.
func (s *Server) forward(method string, args []json.RawMessage) (any, *btcrpc.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.RequestTimeout)
	defer cancel()
	res, err := s.fwd.Call(ctx, method, args)
	if err != nil {
		var nodeErr *btcrpc.Error
		if errors.As(err, &nodeErr) {
			return nil, nodeErr
		}
		return nil, btcrpc.NewInternalServerError(err.Error())
	}
	return res, nil
}

func (s *Server) packResponse(call *btcrpc.APICall, result any) *btcrpc.Message {
	msg, err := btcrpc.NewMessage(btcrpc.APIResponseEvent, btcrpc.APIResponse{
		Action:   call.Action,
		CallArgs: call.Args,
		Result:   result,
	})
	if err != nil {
		return s.packError(call, btcrpc.NewInternalServerError(err.Error()))
	}
	return msg
}

func (s *Server) packError(call *btcrpc.APICall, respErr *btcrpc.Error) *btcrpc.Message {
	s.logCallError(call, respErr)
	apiErr := btcrpc.APIError{Error: respErr}
	if call != nil {
		apiErr.Action = call.Action
		apiErr.CallArgs = call.Args
	}
	msg, err := btcrpc.NewMessage(btcrpc.APIErrorEvent, apiErr)
	if err != nil {
		// Only strings and raw JSON are marshalled there.
		panic(err)
	}
	return msg
}

// logCallError is a call error logger.
func (s *Server) logCallError(call *btcrpc.APICall, jsonErr *btcrpc.Error) {
	logFields := []zap.Field{
		zap.Int64("code", jsonErr.Code),
	}
	if len(jsonErr.Data) != 0 {
		logFields = append(logFields, zap.String("cause", jsonErr.Data))
	}
	if call != nil {
		logFields = append(logFields, zap.String("action", call.Action))
	}

	logText := "Error encountered with api call"
	switch jsonErr.Code {
	case btcrpc.InternalServerErrorCode:
		s.log.Error(logText, logFields...)
	default:
		s.log.Info(logText, logFields...)
	}
}

// writeHTTPError writes an error response to the ResponseWriter.
func (s *Server) writeHTTPError(w http.ResponseWriter, code int, jsonErr *btcrpc.Error) {
	s.logCallError(nil, jsonErr)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if s.config.EnableCORSWorkaround {
		setCORSOriginHeaders(w.Header())
	}
	w.WriteHeader(code)
	err := json.NewEncoder(w).Encode(btcrpc.APIError{Error: jsonErr})
	if err != nil {
		s.log.Error("Error encountered while encoding response", zap.Error(err))
	}
}

func setCORSOriginHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Access-Control-Allow-Headers, Authorization, X-Requested-With")
}

func escapeForLog(in string) string {
	return strings.Map(func(c rune) rune {
		if !strconv.IsGraphic(c) {
			return -1
		}
		return c
	}, in)
}
