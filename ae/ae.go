// Package ae implements the Application Entity: the functional-options
// configuration surface plus Associate (SCU) and StartServer (SCP)
// entry points that glue the association package to a listening socket
// or outbound dial (spec.md §4.8). Grounded on the teacher's
// server.Option/server.Server pattern, generalized with an accept loop
// driven by golang.org/x/sync/errgroup instead of a raw WaitGroup.
package ae

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/caio-sobreiro/dicomcore/acse"
	"github.com/caio-sobreiro/dicomcore/association"
	"github.com/caio-sobreiro/dicomcore/dimse"
	"github.com/caio-sobreiro/dicomcore/metrics"
	"github.com/caio-sobreiro/dicomcore/ulpdu"
)

// PresentationContext is one abstract syntax this AE supports, either
// to propose (SCU) or to accept (SCP).
type PresentationContext struct {
	AbstractSyntax   string
	TransferSyntaxes []string
	SCURole          bool
	SCPRole          bool
	RoleProposed     bool
}

// Config is the Application Entity's identity and policy, built with
// functional options (spec.md §4.8).
type Config struct {
	AETitle                   string
	MaxPDULength              uint32
	ACSETimeout               time.Duration
	DIMSETimeout              time.Duration
	NetworkTimeout            time.Duration
	ConnectTimeout            time.Duration
	ImplementationClassUID    string
	ImplementationVersionName string
	RequireCallingAETitle     string // non-empty: reject RQs from any other calling AE title
	RequireCalledAETitle      bool   // reject RQs whose called AE title doesn't match AETitle
	SupportedContexts         []PresentationContext
	Logger                    *slog.Logger
	Metrics                   *metrics.Registry
}

// Option configures an Application Entity.
type Option func(*Config)

// WithMaxPDULength overrides the default 16KiB Maximum PDU Length.
func WithMaxPDULength(n uint32) Option { return func(c *Config) { c.MaxPDULength = n } }

// WithACSETimeout overrides the ARTIM duration.
func WithACSETimeout(d time.Duration) Option { return func(c *Config) { c.ACSETimeout = d } }

// WithDIMSETimeout overrides the per-response DIMSE timeout.
func WithDIMSETimeout(d time.Duration) Option { return func(c *Config) { c.DIMSETimeout = d } }

// WithNetworkTimeout overrides the idle-socket read timeout.
func WithNetworkTimeout(d time.Duration) Option { return func(c *Config) { c.NetworkTimeout = d } }

// WithConnectTimeout overrides the outbound TCP dial timeout.
func WithConnectTimeout(d time.Duration) Option { return func(c *Config) { c.ConnectTimeout = d } }

// WithLogger overrides the logger used for AE-level events.
func WithLogger(logger *slog.Logger) Option { return func(c *Config) { c.Logger = logger } }

// WithMetrics attaches a Prometheus registry wrapper (spec.md §2 ambient stack).
func WithMetrics(r *metrics.Registry) Option { return func(c *Config) { c.Metrics = r } }

// WithRequireCallingAETitle rejects any A-ASSOCIATE-RQ whose Calling AE
// Title does not equal aet.
func WithRequireCallingAETitle(aet string) Option {
	return func(c *Config) { c.RequireCallingAETitle = aet }
}

// WithRequireCalledAETitle rejects any A-ASSOCIATE-RQ whose Called AE
// Title does not equal this AE's own title.
func WithRequireCalledAETitle() Option { return func(c *Config) { c.RequireCalledAETitle = true } }

// New builds a Config for aeTitle, supporting the given presentation
// contexts, with defaults applied and opts layered on top.
func New(aeTitle string, contexts []PresentationContext, opts ...Option) *Config {
	c := &Config{
		AETitle:                   aeTitle,
		MaxPDULength:              16384,
		ACSETimeout:               30 * time.Second,
		DIMSETimeout:              60 * time.Second,
		ConnectTimeout:            30 * time.Second,
		ImplementationClassUID:    "1.2.826.0.1.3680043.9.4321.1",
		ImplementationVersionName: "DICOMCORE_01",
		SupportedContexts:         contexts,
		Logger:                    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Config) assocConfig(calledAET string) association.Config {
	return association.Config{
		CallingAETitle:            c.AETitle,
		CalledAETitle:             calledAET,
		MaxPDULength:              c.MaxPDULength,
		ImplementationClassUID:    c.ImplementationClassUID,
		ImplementationVersionName: c.ImplementationVersionName,
		ACSETimeout:               c.ACSETimeout,
		DIMSETimeout:              c.DIMSETimeout,
		NetworkTimeout:            c.NetworkTimeout,
		Logger:                    c.Logger,
	}
}

// Associate opens an association to calledAET at addr, proposing this
// AE's SupportedContexts (spec.md §4.8 "Associate").
func (c *Config) Associate(ctx context.Context, addr, calledAET string) (*association.Association, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.ConnectTimeout)
		defer cancel()
	}
	proposed := make([]acse.ProposedContext, len(c.SupportedContexts))
	for i, pc := range c.SupportedContexts {
		proposed[i] = acse.ProposedContext{
			ID:               byte(2*i + 1), // odd IDs per PS3.8 §7.1.1.13
			AbstractSyntax:   pc.AbstractSyntax,
			TransferSyntaxes: pc.TransferSyntaxes,
			SCURole:          pc.SCURole,
			SCPRole:          pc.SCPRole,
			RoleProposed:     pc.RoleProposed,
		}
	}
	assocCfg := c.assocConfig(calledAET)
	a, err := association.Open(ctx, addr, assocCfg, proposed, nil)
	if err != nil {
		if c.Metrics != nil {
			c.Metrics.AssociationRejected()
		}
		return nil, err
	}
	if c.Metrics != nil {
		c.Metrics.AssociationOpened()
	}
	return a, nil
}

// Handler is the application callback invoked for each accepted
// association on the SCP side.
type Handler func(ctx context.Context, a *association.Association)

// StartServer listens on addr and serves incoming associations until
// ctx is cancelled, dispatching each to handler on its own goroutine
// under an errgroup (spec.md §4.8 "StartServer", §5 concurrency model).
func (c *Config) StartServer(ctx context.Context, addr string, handler Handler) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("ae: listen: %w", err)
	}
	defer listener.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return listener.Close()
	})

	c.Logger.Info("AE listening", "address", listener.Addr().String(), "ae_title", c.AETitle)

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return g.Wait()
			default:
				return fmt.Errorf("ae: accept: %w", err)
			}
		}
		g.Go(func() error {
			c.serveOne(ctx, conn, handler)
			return nil
		})
	}
}

func (c *Config) serveOne(ctx context.Context, conn net.Conn, handler Handler) {
	assocCfg := c.assocConfig(c.AETitle)
	a, err := association.Accept(conn, assocCfg, c.negotiate)
	if err != nil {
		c.Logger.Warn("ae: association rejected", "error", err, "remote", conn.RemoteAddr())
		if c.Metrics != nil {
			c.Metrics.AssociationRejected()
		}
		return
	}
	if c.Metrics != nil {
		c.Metrics.AssociationOpened()
	}
	defer func() {
		if c.Metrics != nil {
			c.Metrics.AssociationClosed()
		}
	}()
	handler(ctx, a)
}

// negotiate implements the acceptor-side policy: check calling/called
// AE title constraints, then accept every proposed context whose
// abstract syntax this AE supports, picking the first mutually
// supported transfer syntax (spec.md §4.4/§4.8).
func (c *Config) negotiate(rq *ulpdu.AAssociateRQ) acse.Decision {
	if c.RequireCallingAETitle != "" && rq.CallingAETitle != c.RequireCallingAETitle {
		return acse.Decision{Reject: acse.RejectReason{
			Result: ulpdu.RJResultRejectedPermanent,
			Source: ulpdu.RJSourceACSEUser,
			Reason: 3, // calling-AE-title-not-recognized
		}}
	}
	if c.RequireCalledAETitle && rq.CalledAETitle != c.AETitle {
		return acse.Decision{Reject: acse.RejectReason{
			Result: ulpdu.RJResultRejectedPermanent,
			Source: ulpdu.RJSourceACSEUser,
			Reason: 7, // called-AE-title-not-recognized
		}}
	}

	supported := make(map[string][]string, len(c.SupportedContexts))
	for _, pc := range c.SupportedContexts {
		supported[pc.AbstractSyntax] = pc.TransferSyntaxes
	}

	results := make(map[byte]acse.AcceptedContext, len(rq.PresentationCtxs))
	for _, pc := range rq.PresentationCtxs {
		ourTS, ok := supported[pc.AbstractSyntax]
		if !ok {
			results[pc.ID] = acse.AcceptedContext{Result: ulpdu.ResultAbstractSyntaxNotSupported}
			continue
		}
		chosen, ok := firstCommon(pc.TransferSyntaxes, ourTS)
		if !ok {
			results[pc.ID] = acse.AcceptedContext{Result: ulpdu.ResultTransferSyntaxesNotSupported}
			continue
		}
		results[pc.ID] = acse.AcceptedContext{Result: ulpdu.ResultAcceptance, TransferSyntax: chosen}
	}
	return acse.Decision{Accept: true, Results: results}
}

func firstCommon(proposed, supported []string) (string, bool) {
	set := make(map[string]bool, len(supported))
	for _, s := range supported {
		set[s] = true
	}
	for _, p := range proposed {
		if set[p] {
			return p, true
		}
	}
	return "", false
}

// RegisterHandler attaches a dimse.Handler to a just-accepted
// association — a convenience for StartServer callers that only need
// SCP dispatch and not the raw association lifecycle.
func RegisterHandler(a *association.Association, h dimse.Handler) {
	a.Provider().SetHandler(h)
}
