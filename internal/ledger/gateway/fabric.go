package gateway

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	fabid "github.com/hyperledger/fabric-gateway/pkg/identity"
	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"registrar/internal/ledger"
	"registrar/internal/ledger/identity"
	"registrar/internal/ledger/profile"
)

// FabricTimeouts bounds each phase of a Fabric gateway call.
type FabricTimeouts struct {
	Evaluate     time.Duration
	Endorse      time.Duration
	Submit       time.Duration
	CommitStatus time.Duration
}

// FabricConnector opens Fabric Gateway clients. One gRPC connection is kept
// per peer address and shared by every identity.
type FabricConnector struct {
	timeouts FabricTimeouts

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
	dials singleflight.Group
}

func NewFabricConnector(timeouts FabricTimeouts) *FabricConnector {
	if timeouts.Evaluate == 0 {
		timeouts.Evaluate = 5 * time.Second
	}
	if timeouts.Endorse == 0 {
		timeouts.Endorse = 15 * time.Second
	}
	if timeouts.Submit == 0 {
		timeouts.Submit = 5 * time.Second
	}
	if timeouts.CommitStatus == 0 {
		timeouts.CommitStatus = time.Minute
	}
	return &FabricConnector{timeouts: timeouts, conns: make(map[string]*grpc.ClientConn)}
}

func (c *FabricConnector) Connect(ctx context.Context, id *identity.Identity, target *profile.Target) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, ledger.NewError(ledger.CategoryNetworkUnavailable, "connect", "acquire deadline exceeded", err)
	}
	conn, err := c.conn(target.Endpoint)
	if err != nil {
		return nil, err
	}

	cert, err := fabid.CertificateFromPEM(id.Credential.CertificatePEM)
	if err != nil {
		return nil, fmt.Errorf("identity %s: parse certificate: %w", id.ID, err)
	}
	x509ID, err := fabid.NewX509Identity(id.MSPID, cert)
	if err != nil {
		return nil, fmt.Errorf("identity %s: %w", id.ID, err)
	}
	key, err := fabid.PrivateKeyFromPEM(id.Credential.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("identity %s: parse private key: %w", id.ID, err)
	}
	sign, err := fabid.NewPrivateKeySign(key)
	if err != nil {
		return nil, fmt.Errorf("identity %s: %w", id.ID, err)
	}

	gw, err := client.Connect(x509ID,
		client.WithSign(sign),
		client.WithClientConnection(conn),
		client.WithEvaluateTimeout(c.timeouts.Evaluate),
		client.WithEndorseTimeout(c.timeouts.Endorse),
		client.WithSubmitTimeout(c.timeouts.Submit),
		client.WithCommitStatusTimeout(c.timeouts.CommitStatus),
	)
	if err != nil {
		return nil, ledger.NewError(ledger.CategoryNetworkUnavailable, "connect", "open gateway", err)
	}
	return &fabricHandle{
		gateway:  gw,
		contract: gw.GetNetwork(target.Channel).GetContract(target.Contract),
	}, nil
}

// Close closes every shared connection.
func (c *FabricConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for addr, conn := range c.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", addr, err))
		}
		delete(c.conns, addr)
	}
	return errors.Join(errs...)
}

func (c *FabricConnector) conn(ep profile.Endpoint) (*grpc.ClientConn, error) {
	c.mu.Lock()
	conn, ok := c.conns[ep.Address]
	c.mu.Unlock()
	if ok {
		return conn, nil
	}

	v, err, _ := c.dials.Do(ep.Address, func() (any, error) {
		c.mu.Lock()
		if existing, ok := c.conns[ep.Address]; ok {
			c.mu.Unlock()
			return existing, nil
		}
		c.mu.Unlock()

		created, err := dial(ep)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.conns[ep.Address] = created
		c.mu.Unlock()
		return created, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*grpc.ClientConn), nil
}

func dial(ep profile.Endpoint) (*grpc.ClientConn, error) {
	creds := insecure.NewCredentials()
	if ep.TLS {
		pool := x509.NewCertPool()
		if len(ep.TLSCACertPEM) > 0 && !pool.AppendCertsFromPEM(ep.TLSCACertPEM) {
			return nil, ledger.NewError(ledger.CategoryProfileResolution, "connect",
				fmt.Sprintf("peer %s: invalid TLS CA certificate", ep.Name), nil)
		}
		creds = credentials.NewClientTLSFromCert(pool, ep.ServerNameOverride)
	}
	conn, err := grpc.NewClient(ep.Address, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, ledger.NewError(ledger.CategoryNetworkUnavailable, "connect",
			fmt.Sprintf("dial peer %s", ep.Name), err)
	}
	return conn, nil
}

type fabricHandle struct {
	gateway  *client.Gateway
	contract *client.Contract
}

func (h *fabricHandle) Submit(ctx context.Context, name string, args ...string) ([]byte, error) {
	proposal, err := h.contract.NewProposal(name, client.WithArguments(args...))
	if err != nil {
		return nil, fmt.Errorf("build proposal %s: %w", name, err)
	}
	txn, err := proposal.EndorseWithContext(ctx)
	if err != nil {
		return nil, classifyFabric(name, err)
	}
	commit, err := txn.SubmitWithContext(ctx)
	if err != nil {
		return nil, classifyFabric(name, err)
	}
	st, err := commit.StatusWithContext(ctx)
	if err != nil {
		return nil, ledger.Ambiguous(name, txn.TransactionID(), err)
	}
	if !st.Successful {
		e := ledger.NewError(ledger.CategoryTransaction, name,
			fmt.Sprintf("transaction failed validation with code %s", st.Code), nil)
		e.TxID = st.TransactionID
		return nil, e
	}
	return txn.Result(), nil
}

func (h *fabricHandle) Evaluate(ctx context.Context, name string, args ...string) ([]byte, error) {
	proposal, err := h.contract.NewProposal(name, client.WithArguments(args...))
	if err != nil {
		return nil, fmt.Errorf("build proposal %s: %w", name, err)
	}
	result, err := proposal.EvaluateWithContext(ctx)
	if err != nil {
		return nil, classifyFabric(name, err)
	}
	return result, nil
}

func (h *fabricHandle) Close() error {
	return h.gateway.Close()
}

// classifyFabric maps Fabric Gateway errors onto the ledger taxonomy by the
// phase that failed and the gRPC status it carries.
func classifyFabric(operation string, err error) error {
	var (
		endorseErr *client.EndorseError
		submitErr  *client.SubmitError
		statusErr  *client.CommitStatusError
		commitErr  *client.CommitError
	)
	code := status.Code(err)
	switch {
	case errors.As(err, &commitErr):
		e := ledger.NewError(ledger.CategoryTransaction, operation, commitErr.Error(), err)
		e.TxID = commitErr.TransactionID
		return e
	case errors.As(err, &statusErr):
		return ledger.Ambiguous(operation, statusErr.TransactionID, err)
	case errors.As(err, &submitErr):
		switch code {
		case codes.DeadlineExceeded, codes.Canceled:
			return ledger.Ambiguous(operation, submitErr.TransactionID, err)
		case codes.Unavailable:
			e := ledger.NewError(ledger.CategoryNetworkUnavailable, operation, "orderer unavailable", err)
			e.TxID = submitErr.TransactionID
			return e
		}
		e := ledger.NewError(ledger.CategoryTransaction, operation, rejectReason(err), err)
		e.TxID = submitErr.TransactionID
		return e
	case errors.As(err, &endorseErr):
		if code == codes.Canceled {
			return ledger.NewError(ledger.CategoryCanceled, operation, "canceled before ordering", err)
		}
		if code == codes.Unavailable || code == codes.DeadlineExceeded {
			return ledger.NewError(ledger.CategoryNetworkUnavailable, operation, "endorsing peers unavailable", err)
		}
		e := ledger.NewError(ledger.CategoryTransaction, operation, rejectReason(err), err)
		e.TxID = endorseErr.TransactionID
		return e
	}
	switch code {
	case codes.Unavailable, codes.DeadlineExceeded:
		return ledger.NewError(ledger.CategoryNetworkUnavailable, operation, "peer unavailable", err)
	case codes.Canceled:
		return ledger.NewError(ledger.CategoryCanceled, operation, "request canceled", err)
	}
	return ledger.NewError(ledger.CategoryTransaction, operation, rejectReason(err), err)
}

// rejectReason prefers the contract's own messages from the error details,
// falling back to the status message.
func rejectReason(err error) string {
	st := status.Convert(err)
	var msgs []string
	for _, d := range st.Details() {
		if m, ok := d.(interface{ GetMessage() string }); ok && m.GetMessage() != "" {
			msgs = append(msgs, m.GetMessage())
		}
	}
	if len(msgs) > 0 {
		return strings.Join(msgs, "; ")
	}
	return st.Message()
}
