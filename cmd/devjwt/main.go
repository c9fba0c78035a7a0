// Command devjwt is a dev-only JWT issuer and JWKS server.
//
// It is NOT a full OIDC provider. It exists to support local development against
// real RS256 JWT verification (iss/aud/exp + JWKS).
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Overland-East-Bay/trip-tracker-api/internal/platform/auth/jwks_testutil"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/platform/logging"
)

type options struct {
	port     string
	issuer   string
	audience string
	kid      string
	ttl      time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:           "devjwt",
		Short:         "Mint dev RS256 tokens and serve the matching JWKS",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(o)
		},
	}
	cmd.Flags().StringVar(&o.port, "port", getenv("PORT", "5556"), "listen port")
	cmd.Flags().StringVar(&o.issuer, "issuer", getenv("ISSUER", "http://devjwt:5556"), "iss claim")
	cmd.Flags().StringVar(&o.audience, "audience", getenv("AUDIENCE", "trip-tracker"), "aud claim")
	cmd.Flags().StringVar(&o.kid, "kid", getenv("KID", "dev-kid-1"), "key id")
	cmd.Flags().DurationVar(&o.ttl, "ttl", getenvDuration("TTL", 30*time.Minute), "token lifetime")
	return cmd
}

func run(o options) error {
	log, err := logging.New("info", "console")
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	kp, err := jwks_testutil.GenerateRSAKeypair(o.kid)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	doc, err := jwks_testutil.MarshalJWKS([]jwks_testutil.Keypair{kp})
	if err != nil {
		return fmt.Errorf("marshal jwks: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + o.port,
		Handler:           newHandler(o, kp, doc, time.Now),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("devjwt listening",
		zap.String("addr", srv.Addr),
		zap.String("iss", o.issuer),
		zap.String("aud", o.audience),
		zap.String("kid", o.kid),
		zap.Duration("ttl", o.ttl),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newHandler(o options, kp jwks_testutil.Keypair, jwksDoc []byte, now func() time.Time) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	// Common JWKS path used by many providers.
	r.Method(http.MethodGet, "/.well-known/jwks.json", jwks_testutil.JWKSHandler(jwksDoc))

	// Mint a JWT:
	//   GET /token?sub=dev|alice
	r.Get("/token", func(w http.ResponseWriter, r *http.Request) {
		sub := strings.TrimSpace(r.URL.Query().Get("sub"))
		if sub == "" {
			http.Error(w, "missing sub", http.StatusBadRequest)
			return
		}

		issuedAt := now().UTC()
		skew := -5 * time.Second // small skew tolerance for local use
		token, err := jwks_testutil.MintRS256JWT(kp, o.issuer, o.audience, sub, issuedAt, o.ttl, &skew)
		if err != nil {
			http.Error(w, "failed to mint token", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token": token,
			"sub":   sub,
			"iss":   o.issuer,
			"aud":   o.audience,
			"exp":   issuedAt.Add(o.ttl).Unix(),
		})
	})
	return r
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
