package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ad-freiburg/text-correction-utils/api"
	"github.com/ad-freiburg/text-correction-utils/constraint"
	"github.com/ad-freiburg/text-correction-utils/envconfig"
	"github.com/ad-freiburg/text-correction-utils/grammar"
	"github.com/ad-freiburg/text-correction-utils/lexer"
	"github.com/ad-freiburg/text-correction-utils/parser"
	"github.com/ad-freiburg/text-correction-utils/pdfa"
	"github.com/ad-freiburg/text-correction-utils/trie"
	"github.com/ad-freiburg/text-correction-utils/version"
)

var errMissingGrammar = errors.New("missing grammar")

type Server struct {
	catalog    *Catalog
	sessions   *sessionStore
	engines    *engineCache
	parsers    *verifiedCache[*parser.Parser]
	numThreads int
}

func NewServer(catalog *Catalog, maxSessions, numThreads int) (*Server, error) {
	sessions, err := newSessionStore(maxSessions)
	if err != nil {
		return nil, err
	}

	engines, err := newEngineCache(64)
	if err != nil {
		return nil, err
	}

	parsers, err := newVerifiedCache[*parser.Parser](64)
	if err != nil {
		return nil, err
	}

	return &Server{
		catalog:    catalog,
		sessions:   sessions,
		engines:    engines,
		parsers:    parsers,
		numThreads: numThreads,
	}, nil
}

// statusCode maps errors of the handlers to HTTP status codes.
func statusCode(err error) int {
	var (
		lexErr     *lexer.Error
		parseErr   *parser.Error
		specErr    *lexer.SpecError
		grammarErr *grammar.SyntaxError
		patternErr *pdfa.SyntaxError
	)

	switch {
	case errors.Is(err, errSessionNotFound), errors.Is(err, errUnknownGrammar):
		return http.StatusNotFound
	case errors.Is(err, constraint.ErrInvalidContinuation):
		return http.StatusConflict
	case errors.Is(err, errMissingGrammar),
		errors.Is(err, errNotParsable),
		errors.Is(err, constraint.ErrInvalidPrefix),
		errors.Is(err, constraint.ErrUnknownKind),
		errors.Is(err, constraint.ErrInvalidSource),
		errors.Is(err, grammar.ErrConflicts),
		errors.As(err, &lexErr),
		errors.As(err, &parseErr),
		errors.As(err, &specErr),
		errors.As(err, &grammarErr),
		errors.As(err, &patternErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

// bind decodes the JSON body into req.
func bind(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	switch {
	case errors.Is(err, io.EOF):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return false
	case err != nil:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func toBytes(ss []string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}

// source resolves the grammar of a session request and its default
// continuations.
func (s *Server) source(req *api.SessionRequest) (constraint.Source, [][]byte, error) {
	if req.Grammar == "" {
		kind := req.Kind
		switch {
		case kind != "":
		case len(req.Keys) > 0:
			kind = string(constraint.KindContinuation)
		case req.Pattern != "":
			kind = string(constraint.KindRegex)
		}

		k, err := constraint.ParseKind(kind)
		if err != nil {
			return constraint.Source{}, nil, err
		}
		return constraint.Source{
			Kind:    k,
			Grammar: req.GrammarText,
			Lexer:   req.LexerText,
			Pattern: req.Pattern,
			Keys:    req.Keys,
			Values:  req.Values,
		}, nil, nil
	}

	e, err := s.catalog.get(req.Grammar)
	if err != nil {
		return constraint.Source{}, nil, err
	}

	src := e.src
	if req.Kind != "" {
		k, err := constraint.ParseKind(req.Kind)
		if err != nil {
			return constraint.Source{}, nil, err
		}
		src.Kind = k
	}

	conts, err := e.continuations()
	if err != nil {
		return constraint.Source{}, nil, err
	}
	return src, conts, nil
}

func sessionResponse(id string, session *constraint.Session) api.SessionResponse {
	value, _ := session.Value()
	return api.SessionResponse{
		ID:         id,
		Kind:       string(session.Engine().Kind()),
		Indices:    session.Get(),
		IsMatch:    session.IsMatch(),
		ShouldStop: session.ShouldStop(),
		Value:      value,
	}
}

func (s *Server) CreateSessionHandler(c *gin.Context) {
	var req api.SessionRequest
	if !bind(c, &req) {
		return
	}

	src, conts, err := s.source(&req)
	if err != nil {
		abort(c, err)
		return
	}

	if len(req.Continuations) > 0 {
		conts = toBytes(req.Continuations)
	}
	if len(conts) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing continuations"})
		return
	}

	e, err := s.engines.get(src, conts)
	if err != nil {
		abort(c, err)
		return
	}

	session, err := constraint.NewSession(e, []byte(req.Prefix))
	if err != nil {
		abort(c, err)
		return
	}

	id := s.sessions.add(session)
	slog.Debug("created session", "id", id, "kind", e.Kind(), "sessions", s.sessions.len())
	c.JSON(http.StatusOK, sessionResponse(id, session))
}

func (s *Server) GetSessionHandler(c *gin.Context) {
	id := c.Param("id")
	session, err := s.sessions.get(id)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse(id, session))
}

func (s *Server) NextHandler(c *gin.Context) {
	id := c.Param("id")
	session, err := s.sessions.get(id)
	if err != nil {
		abort(c, err)
		return
	}

	var req api.NextRequest
	if !bind(c, &req) {
		return
	}

	if err := session.Next(req.Index); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse(id, session))
}

func (s *Server) ResetHandler(c *gin.Context) {
	id := c.Param("id")
	session, err := s.sessions.get(id)
	if err != nil {
		abort(c, err)
		return
	}

	var req api.ResetRequest
	if !bind(c, &req) {
		return
	}

	if err := session.Reset([]byte(req.Prefix)); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse(id, session))
}

func (s *Server) DeleteSessionHandler(c *gin.Context) {
	if err := s.sessions.remove(c.Param("id")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// parser returns the parser of a catalog grammar, or of an inline grammar
// if name is empty.
func (s *Server) parser(name, grammarText, lexerText string) (*parser.Parser, error) {
	if name != "" {
		e, err := s.catalog.get(name)
		if err != nil {
			return nil, err
		}
		return e.parser()
	}

	if grammarText == "" || lexerText == "" {
		return nil, errMissingGrammar
	}

	key := appendField(appendField(nil, []byte(grammarText)), []byte(lexerText))
	return s.parsers.get(key, func() (*parser.Parser, error) {
		return parser.New(grammarText, lexerText)
	})
}

func (s *Server) LexHandler(c *gin.Context) {
	var req api.LexRequest
	if !bind(c, &req) {
		return
	}

	p, err := s.parser(req.Grammar, req.GrammarText, req.LexerText)
	if err != nil {
		abort(c, err)
		return
	}

	tokens, spans, err := lexer.Lex(p.Entries(), []byte(req.Text))
	if err != nil {
		abort(c, err)
		return
	}

	g := p.Table().Grammar()
	resp := api.LexResponse{Tokens: make([]api.Token, len(tokens))}
	for i, t := range tokens {
		tok := api.Token{
			Start:  spans[i].Start,
			Len:    spans[i].Len,
			Text:   req.Text[spans[i].Start:spans[i].End()],
			Ignore: t.Ignore,
		}
		if !t.Ignore {
			tok.Name = g.TokenName(t.ID)
		}
		resp.Tokens[i] = tok
	}

	c.JSON(http.StatusOK, resp)
}

func toAPINode(n *parser.Node) api.Node {
	out := api.Node{Kind: n.Kind.String(), Name: n.Name, Start: n.Span.Start, Len: n.Span.Len}
	for _, child := range n.Children {
		out.Children = append(out.Children, toAPINode(child))
	}
	return out
}

func (s *Server) ParseHandler(c *gin.Context) {
	var req api.ParseRequest
	if !bind(c, &req) {
		return
	}

	p, err := s.parser(req.Grammar, req.GrammarText, req.LexerText)
	if err != nil {
		abort(c, err)
		return
	}

	var opts []parser.Option
	if req.Collapse {
		opts = append(opts, parser.WithCollapse())
	}
	if req.SkipEmpty {
		opts = append(opts, parser.WithSkipEmpty())
	}

	n, err := p.Parse(req.Text, opts...)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, api.ParseResponse{Tree: toAPINode(n), Pretty: n.Pretty(req.Text, req.Collapse)})
}

func (s *Server) ContinuationsHandler(c *gin.Context) {
	var req api.ContinuationsRequest
	if !bind(c, &req) {
		return
	}

	t := trie.NewART[int]()
	for i, k := range req.Keys {
		t.Insert([]byte(k), i)
	}

	ct := trie.NewContinuationTrie(t, toBytes(req.Continuations))
	indices, err := ct.BatchContinuationIndices(c.Request.Context(), toBytes(req.Prefixes), s.numThreads)
	if err != nil {
		abort(c, err)
		return
	}

	for i := range indices {
		if indices[i] == nil {
			indices[i] = []int{}
		}
	}

	c.JSON(http.StatusOK, api.ContinuationsResponse{Indices: indices})
}

func (s *Server) ListGrammarsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, api.ListGrammarsResponse{Grammars: s.catalog.List()})
}

func (s *Server) GenerateRoutes() http.Handler {
	config := cors.DefaultConfig()
	config.AllowWildcard = true
	config.AllowBrowserExtensions = true
	config.AllowHeaders = []string{"Authorization", "Content-Type", "User-Agent", "Accept", "X-Requested-With"}
	config.AllowOrigins = envconfig.AllowOrigins

	r := gin.Default()
	r.Use(cors.New(config))

	r.POST("/api/sessions", s.CreateSessionHandler)
	r.GET("/api/sessions/:id", s.GetSessionHandler)
	r.POST("/api/sessions/:id/next", s.NextHandler)
	r.POST("/api/sessions/:id/reset", s.ResetHandler)
	r.DELETE("/api/sessions/:id", s.DeleteSessionHandler)

	r.POST("/api/lex", s.LexHandler)
	r.POST("/api/parse", s.ParseHandler)
	r.POST("/api/continuations", s.ContinuationsHandler)

	r.GET("/api/grammars", s.ListGrammarsHandler)

	for _, method := range []string{http.MethodGet, http.MethodHead} {
		r.Handle(method, "/", func(c *gin.Context) {
			c.String(http.StatusOK, "text correction utils are running")
		})

		r.Handle(method, "/api/version", func(c *gin.Context) {
			c.JSON(http.StatusOK, api.VersionResponse{Version: version.Version})
		})
	}

	return r
}

// Serve serves the API on ln until ctx is done.
func Serve(ctx context.Context, ln net.Listener) error {
	catalog, err := NewCatalog(envconfig.FileConfig(), envconfig.GrammarsDir)
	if err != nil {
		return fmt.Errorf("grammar catalog: %w", err)
	}

	s, err := NewServer(catalog, envconfig.MaxSessions, envconfig.NumThreads)
	if err != nil {
		return err
	}

	srv := &http.Server{Handler: s.GenerateRoutes()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
		}
	}()

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	slog.Info("server config", "env", envconfig.Values(), "grammars", len(catalog.entries))

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
