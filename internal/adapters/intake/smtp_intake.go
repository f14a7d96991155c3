package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/mikey/doc-router/internal/allowlist"
	"github.com/mikey/doc-router/internal/config"
	"github.com/mikey/doc-router/internal/core"
	"github.com/mikey/doc-router/internal/ports"
)

// SMTPIntake accepts mail over SMTP and submits each message as a Message input
type SMTPIntake struct {
	pipeline ports.Pipeline
	senders  *allowlist.Checker
	logger   *zap.Logger
	cfg      config.SMTPConfig

	mu     sync.Mutex
	server *smtp.Server
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSMTPIntake creates a new SMTP intake
func NewSMTPIntake(pipeline ports.Pipeline, senders *allowlist.Checker, cfg config.SMTPConfig, logger *zap.Logger) *SMTPIntake {
	if senders == nil {
		senders = allowlist.NewChecker(nil, logger)
	}
	if cfg.Domain == "" {
		cfg.Domain = "localhost"
	}
	return &SMTPIntake{
		pipeline: pipeline,
		senders:  senders,
		logger:   logger,
		cfg:      cfg,
		ctx:      context.Background(),
	}
}

// Start listens on the configured address and serves in the background
func (s *SMTPIntake) Start(ctx context.Context) error {
	l, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddress, err)
	}
	s.Serve(ctx, l)
	return nil
}

// Serve serves SMTP on an existing listener in the background
func (s *SMTPIntake) Serve(ctx context.Context, l net.Listener) {
	server := smtp.NewServer(&smtpBackend{intake: s})
	server.Addr = l.Addr().String()
	server.Domain = s.cfg.Domain
	server.ReadTimeout = 30 * time.Second
	server.WriteTimeout = 30 * time.Second
	server.MaxMessageBytes = s.cfg.MaxMessageBytes
	server.MaxRecipients = 50

	s.mu.Lock()
	s.server = server
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("SMTP intake starting",
		zap.String("address", server.Addr),
		zap.Bool("sender_allowlist", s.senders.Enabled()))

	go func() {
		if err := server.Serve(l); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			s.logger.Error("SMTP server error", zap.Error(err))
		}
	}()
}

// Stop closes the listener and cancels inputs still in flight
func (s *SMTPIntake) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

func (s *SMTPIntake) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	intake *SMTPIntake
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{intake: b.intake}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	intake     *SMTPIntake
	sender     string
	recipients []string
}

var errSenderNotAllowed = &smtp.SMTPError{
	Code:         550,
	EnhancedCode: smtp.EnhancedCode{5, 7, 1},
	Message:      "Sender domain not accepted",
}

var errShuttingDown = &smtp.SMTPError{
	Code:         421,
	EnhancedCode: smtp.EnhancedCode{4, 3, 2},
	Message:      "Service shutting down, try again later",
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

// Mail checks the envelope sender against the allowlist
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	if !s.intake.senders.Allowed(from) {
		s.intake.logger.Info("Rejecting sender", zap.String("sender", from))
		return errSenderNotAllowed
	}
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data submits the message to the pipeline. Processing failures are
// recorded in the event store and do not bounce the message.
func (s *smtpSession) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.intake.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	ctx := s.intake.baseContext()
	if ctx.Err() != nil {
		return errShuttingDown
	}

	outcome := s.intake.pipeline.Process(ctx, core.Input{
		Source:  "smtp:" + s.sender,
		Payload: raw,
		Kind:    core.FormatMessage,
	})

	s.intake.logger.Info("Processed message",
		zap.String("sender", s.sender),
		zap.String("sender_domain", allowlist.Domain(s.sender)),
		zap.Int("recipients", len(s.recipients)),
		zap.String("correlation_id", outcome.CorrelationID),
		zap.String("status", string(outcome.Status)))
	return nil
}

// Logout handles SMTP logout
func (s *smtpSession) Logout() error {
	return nil
}
