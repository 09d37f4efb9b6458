package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"registrar/internal/certificate/models"
	jwttoken "registrar/internal/jwt_token"
	"registrar/internal/ledger/identity"
	"registrar/internal/storage/cas"
)

// Version is set via ldflags.
var Version = "dev"

var errNotVerified = errors.New("document does not match the certificate")

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "registrarctl",
		Usage:   "registrar operator tool",
		Version: Version,
		Commands: []*cli.Command{
			digestCommand(),
			tokenCommand(),
			verifyCommand(),
			walletCommand(),
		},
	}
}

func digestCommand() *cli.Command {
	return &cli.Command{
		Name:      "digest",
		Usage:     "Print the document hash and content identifier a file would be issued with",
		ArgsUsage: "FILE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("digest needs exactly one FILE")
			}
			data, err := os.ReadFile(c.Args().First())
			if err != nil {
				return err
			}
			id, err := cas.CIDFor(data)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "sha256  %s\ncid     %s\nbytes   %d\n", models.DocumentHash(data), id, len(data))
			return nil
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Mint a development bearer token for a ledger identity",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "identity", Aliases: []string{"i"}, Usage: "wallet identity the token acts as", Required: true},
			&cli.StringFlag{Name: "secret", Usage: "HS256 signing key (auth.jwt_signing_key)", EnvVars: []string{"REGISTRAR_AUTH__JWT_SIGNING_KEY"}, Required: true},
			&cli.StringFlag{Name: "issuer", Value: "registrar"},
			&cli.StringFlag{Name: "audience", Value: "registrar-api"},
			&cli.DurationFlag{Name: "ttl", Value: time.Hour},
		},
		Action: func(c *cli.Context) error {
			svc := jwttoken.NewJWTService(c.String("secret"), c.String("issuer"), c.String("audience"), c.Duration("ttl"))
			tok, err := svc.GenerateAccessToken(c.Context, c.String("identity"), c.Duration("ttl"))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, tok)
			return nil
		},
	}
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Verify a document against its on-chain certificate",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api", Value: "http://localhost:8080", EnvVars: []string{"REGISTRAR_API"}},
			&cli.StringFlag{Name: "id", Usage: "certificate ID", Required: true},
			&cli.StringFlag{Name: "token", Usage: "bearer token; omitted for anonymous verification", EnvVars: []string{"REGISTRAR_TOKEN"}},
			&cli.DurationFlag{Name: "timeout", Value: 30 * time.Second},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("verify needs exactly one FILE")
			}
			data, err := os.ReadFile(c.Args().First())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			v, err := postVerify(ctx, c.String("api"), c.String("id"), c.String("token"), filepath.Base(c.Args().First()), data)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "%s (%s)\ncertificate %s  student %s  type %s\n",
				v.Outcome, v.Reason, v.CertificateID, v.StudentID, v.Type)
			if !v.Verified() {
				return errNotVerified
			}
			return nil
		},
	}
}

func postVerify(ctx context.Context, api, certificateID, token, filename string, data []byte) (*models.Verification, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("pdf", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	url := strings.TrimRight(api, "/") + "/api/certificates/" + certificateID + "/verify"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		return nil, fmt.Errorf("%s: %s %s", resp.Status, apiErr.Error, apiErr.Description)
	}
	var v models.Verification
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode verification: %w", err)
	}
	return &v, nil
}

func walletCommand() *cli.Command {
	return &cli.Command{
		Name:  "wallet",
		Usage: "Manage the file wallet used in fabric mode",
		Subcommands: []*cli.Command{
			{
				Name:  "import",
				Usage: "Write an enrolled identity's certificate and key into the wallet",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "dir", Usage: "wallet directory (ledger.wallet_dir)", Required: true},
					&cli.StringFlag{Name: "id", Usage: "identity label", Required: true},
					&cli.StringFlag{Name: "msp", Usage: "MSP ID of the identity's organization", Required: true},
					&cli.PathFlag{Name: "cert", Usage: "PEM signing certificate", Required: true},
					&cli.PathFlag{Name: "key", Usage: "PEM private key", Required: true},
				},
				Action: func(c *cli.Context) error {
					certPEM, err := os.ReadFile(c.Path("cert"))
					if err != nil {
						return err
					}
					keyPEM, err := os.ReadFile(c.Path("key"))
					if err != nil {
						return err
					}
					wallet := identity.NewFileWallet(c.String("dir"))
					if err := wallet.Put(c.String("id"), c.String("msp"), identity.Credential{
						CertificatePEM: certPEM,
						PrivateKeyPEM:  keyPEM,
					}); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "imported %s (%s) into %s\n", c.String("id"), c.String("msp"), c.String("dir"))
					return nil
				},
			},
		},
	}
}
