package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vaultgate/vaultgate/internal/core/application"
	"github.com/vaultgate/vaultgate/pkg/wallet"
)

const (
	// DatadirKey is the local data directory to store the internal state of daemon
	DatadirKey = "DATADIR"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// NetworkKey is the network newly created wallets are set to
	NetworkKey = "NETWORK"
	// DBTypeKey is used to switch database type between those supported
	DBTypeKey = "DB_TYPE"
	// KDFIterationsKey is the PBKDF2 iteration count used to seal the vault
	KDFIterationsKey = "KDF_ITERATIONS"
	// OperatorAddrKey is the address <host:port> the operator HTTP interface listens on
	OperatorAddrKey = "OPERATOR_ADDR"
	// WebsocketAddrKey is the address <host:port> the websocket transport listens on
	WebsocketAddrKey = "WS_ADDR"
	// WebsocketTokenSecretKey is the HMAC secret used to verify the origin
	// tokens of websocket callers. A random one is generated and stored in
	// the datadir if not provided
	WebsocketTokenSecretKey = "WS_TOKEN_SECRET"
	// RateLimitKey is the max number of requests per second accepted from
	// a single caller
	RateLimitKey = "RATE_LIMIT"
	// LedgerURLKey is the base URL of the ledger REST API
	LedgerURLKey = "LEDGER_URL"
	// LedgerTimeoutKey is the timeout of every request to the ledger
	LedgerTimeoutKey = "LEDGER_TIMEOUT"
	// InactivityTimeoutKey is the idle time after which the vault locks
	InactivityTimeoutKey = "INACTIVITY_TIMEOUT"
	// MaxFailedAttemptsKey is the number of consecutive wrong PINs that
	// trigger a lockout
	MaxFailedAttemptsKey = "MAX_FAILED_ATTEMPTS"
	// LockoutDurationKey is how long unlock is refused after a lockout
	LockoutDurationKey = "LOCKOUT_DURATION"
	// ApprovalTimeoutKey is how long an approval request waits for the
	// user's decision before expiring
	ApprovalTimeoutKey = "APPROVAL_TIMEOUT"
	// EnableProfilerKey enables the periodic logging of runtime statistics
	EnableProfilerKey = "ENABLE_PROFILER"
	// StatsIntervalKey defines interval for printing runtime statistics
	StatsIntervalKey = "STATS_INTERVAL"
	// NoMacaroonsKey is used to start the daemon without macaroon auth on
	// the operator interface
	NoMacaroonsKey = "NO_MACAROONS"

	DbLocation        = "db"
	ProfilerLocation  = "stats"
	MacaroonsLocation = "macaroons"
	TokenSecretFile   = "ws_token_secret"

	minKDFIterations = wallet.DefaultIterations
	minTokenSecret   = 32
)

var vip *viper.Viper
var defaultDatadir = btcutil.AppDataDir("vaultgate", false)

// Flags returns the command line flags of the daemon. Once parsed, they take
// precedence over the environment when given to InitConfig.
func Flags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("vaultgated", pflag.ContinueOnError)
	flags.String("datadir", defaultDatadir, "data directory of the daemon")
	flags.Int("log-level", 4, "logging level, from 0 (panic) to 6 (trace)")
	flags.String("network", wallet.MainNet.Name, "network of newly created wallets")
	flags.String("operator-addr", "localhost:9000", "operator interface address")
	flags.String("ws-addr", "localhost:9945", "websocket transport address")
	flags.String("ledger-url", "", "base URL of the ledger REST API")
	flags.Bool("no-macaroons", false, "disable macaroon auth on the operator interface")
	return flags
}

var flagKeys = map[string]string{
	"datadir":       DatadirKey,
	"log-level":     LogLevelKey,
	"network":       NetworkKey,
	"operator-addr": OperatorAddrKey,
	"ws-addr":       WebsocketAddrKey,
	"ledger-url":    LedgerURLKey,
	"no-macaroons":  NoMacaroonsKey,
}

// InitConfig loads the configuration from the environment, with the
// VAULTGATE_ prefix, and from the given flags if not nil. The datadir is
// created if missing.
func InitConfig(flags *pflag.FlagSet) error {
	vip = viper.New()
	vip.SetEnvPrefix("VAULTGATE")
	vip.AutomaticEnv()

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(NetworkKey, wallet.MainNet.Name)
	vip.SetDefault(DBTypeKey, application.DBBadger)
	vip.SetDefault(KDFIterationsKey, wallet.DefaultIterations)
	vip.SetDefault(OperatorAddrKey, "localhost:9000")
	vip.SetDefault(WebsocketAddrKey, "localhost:9945")
	vip.SetDefault(RateLimitKey, 10)
	vip.SetDefault(LedgerTimeoutKey, 10*time.Second)
	vip.SetDefault(InactivityTimeoutKey, 15*time.Minute)
	vip.SetDefault(MaxFailedAttemptsKey, 5)
	vip.SetDefault(LockoutDurationKey, 5*time.Minute)
	vip.SetDefault(ApprovalTimeoutKey, 2*time.Minute)
	vip.SetDefault(EnableProfilerKey, false)
	vip.SetDefault(StatsIntervalKey, 600)
	vip.SetDefault(NoMacaroonsKey, false)

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil || !flag.Changed {
				continue
			}
			if err := vip.BindPFlag(key, flag); err != nil {
				return fmt.Errorf("error while binding flag %s: %s", name, err)
			}
		}
	}

	if err := validate(); err != nil {
		return fmt.Errorf("error while validating config: %s", err)
	}

	if err := initDatadir(); err != nil {
		return fmt.Errorf("error while creating datadir: %s", err)
	}

	if err := initTokenSecret(); err != nil {
		return fmt.Errorf("error while loading websocket token secret: %s", err)
	}

	return nil
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetDuration(key string) time.Duration {
	return vip.GetDuration(key)
}

func GetBool(key string) bool {
	return vip.GetBool(key)
}

func GetDatadir() string {
	return GetString(DatadirKey)
}

// GetTokenSecret returns the websocket token secret as raw bytes.
func GetTokenSecret() []byte {
	return []byte(GetString(WebsocketTokenSecretKey))
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("missing datadir")
	}

	if _, err := wallet.NetworkByName(GetString(NetworkKey)); err != nil {
		return err
	}

	dbType := GetString(DBTypeKey)
	if _, ok := application.SupportedDBType[dbType]; !ok {
		return fmt.Errorf("unsupported db type %s", dbType)
	}

	if iterations := GetInt(KDFIterationsKey); iterations < minKDFIterations {
		return fmt.Errorf(
			"%s must be equal or greater than %d", KDFIterationsKey, minKDFIterations,
		)
	}

	for _, key := range []string{OperatorAddrKey, WebsocketAddrKey} {
		if _, _, err := net.SplitHostPort(GetString(key)); err != nil {
			return fmt.Errorf("%s must be a valid address in the form host:port", key)
		}
	}

	ledgerURL := GetString(LedgerURLKey)
	if ledgerURL == "" {
		return fmt.Errorf("missing ledger url")
	}
	if u, err := url.Parse(ledgerURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be a valid http(s) url", LedgerURLKey)
	}

	secret := GetString(WebsocketTokenSecretKey)
	if secret != "" && len(secret) < minTokenSecret {
		return fmt.Errorf(
			"%s must be at least %d characters long", WebsocketTokenSecretKey,
			minTokenSecret,
		)
	}

	for _, key := range []string{
		RateLimitKey, MaxFailedAttemptsKey,
	} {
		if GetInt(key) <= 0 {
			return fmt.Errorf("%s must be a positive number", key)
		}
	}
	for _, key := range []string{
		LedgerTimeoutKey, InactivityTimeoutKey, LockoutDurationKey,
		ApprovalTimeoutKey,
	} {
		if GetDuration(key) <= 0 {
			return fmt.Errorf("%s must be a positive duration", key)
		}
	}

	if GetBool(EnableProfilerKey) && GetInt(StatsIntervalKey) <= 0 {
		return fmt.Errorf("%s must be a positive number", StatsIntervalKey)
	}

	return nil
}

func initDatadir() error {
	datadir := GetDatadir()
	if err := makeDirectoryIfNotExists(datadir); err != nil {
		return err
	}
	if GetString(DBTypeKey) == application.DBBadger {
		if err := makeDirectoryIfNotExists(filepath.Join(datadir, DbLocation)); err != nil {
			return err
		}
	}

	profilerEnabled := GetBool(EnableProfilerKey)
	if profilerEnabled {
		if err := makeDirectoryIfNotExists(filepath.Join(datadir, ProfilerLocation)); err != nil {
			return err
		}
	}
	return nil
}

// initTokenSecret loads the websocket token secret from the datadir, or
// generates and stores a new one, unless it's given explicitly.
func initTokenSecret() error {
	if GetString(WebsocketTokenSecretKey) != "" {
		return nil
	}

	path := filepath.Join(GetDatadir(), TokenSecretFile)
	content, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		buf := make([]byte, minTokenSecret)
		if _, err := rand.Read(buf); err != nil {
			return err
		}
		content = []byte(hex.EncodeToString(buf))
		if err := os.WriteFile(path, content, 0600); err != nil {
			return err
		}
	}

	secret := strings.TrimSpace(string(content))
	if len(secret) < minTokenSecret {
		return fmt.Errorf("secret in %s is too short", path)
	}
	vip.Set(WebsocketTokenSecretKey, secret)
	return nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0700)
	}
	return nil
}
