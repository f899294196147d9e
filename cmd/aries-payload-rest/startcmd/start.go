/*
Copyright SecureKey Technologies Inc. All Rights Reserved.
SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/mux"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/component/storage/leveldb"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/hyperledger/aries-payload/pkg/controller"
	"github.com/hyperledger/aries-payload/pkg/controller/rest"
	"github.com/hyperledger/aries-payload/pkg/enclave/sodium"
	"github.com/hyperledger/aries-payload/pkg/framework/context"
	"github.com/hyperledger/aries-payload/pkg/transport/push"
)

const (
	// api host flag.
	hostFlagName      = "api-host"
	hostEnvKey        = "PAYLOAD_API_HOST"
	hostFlagShorthand = "a"
	hostFlagUsage     = "Host Name:Port." +
		" Alternatively, this can be set with the following environment variable: " + hostEnvKey

	// api token flag.
	tokenFlagName      = "api-token"
	tokenEnvKey        = "PAYLOAD_API_TOKEN" // nolint:gosec
	tokenFlagShorthand = "t"
	tokenFlagUsage     = "Check for bearer token in the authorization header (optional)." +
		" The node to node push endpoint is not protected." +
		" Alternatively, this can be set with the following environment variable: " + tokenEnvKey

	databaseTypeFlagName      = "database-type"
	databaseTypeEnvKey        = "PAYLOAD_DATABASE_TYPE"
	databaseTypeFlagShorthand = "q"
	databaseTypeFlagUsage     = "The type of database to store payloads in. " +
		"Supported options: mem, leveldb. " +
		" Alternatively, this can be set with the following environment variable: " + databaseTypeEnvKey

	databaseURLFlagName      = "database-url"
	databaseURLEnvKey        = "PAYLOAD_DATABASE_URL"
	databaseURLFlagShorthand = "v"
	databaseURLFlagUsage     = "The URL of the database. Not needed if using memstore." +
		" For leveldb, this is the directory holding the database files." +
		" Alternatively, this can be set with the following environment variable: " + databaseURLEnvKey

	databasePrefixFlagName      = "database-prefix"
	databasePrefixEnvKey        = "PAYLOAD_DATABASE_PREFIX"
	databasePrefixFlagShorthand = "u"
	databasePrefixFlagUsage     = "An optional prefix to be used when creating and retrieving underlying databases. " +
		" Alternatively, this can be set with the following environment variable: " + databasePrefixEnvKey

	databaseTimeoutFlagName  = "database-timeout"
	databaseTimeoutFlagUsage = "Total time in seconds to wait until the db is available before giving up." +
		" Default: " + databaseTimeoutDefault + " seconds." +
		" Alternatively, this can be set with the following environment variable: " + databaseTimeoutEnvKey
	databaseTimeoutEnvKey  = "PAYLOAD_DATABASE_TIMEOUT"
	databaseTimeoutDefault = "30"

	// log level.
	logLevelFlagName  = "log-level"
	logLevelEnvKey    = "PAYLOAD_LOG_LEVEL"
	logLevelFlagUsage = "Log level." +
		" Possible values [INFO] [DEBUG] [ERROR] [WARNING] [CRITICAL] . Defaults to INFO if not set." +
		" Alternatively, this can be set with the following environment variable: " + logLevelEnvKey

	// node key flags.
	publicKeyFlagName  = "public-key"
	publicKeyEnvKey    = "PAYLOAD_PUBLIC_KEY"
	publicKeyFlagUsage = "Base64url public key of the node. A new key pair is generated if not set." +
		" Alternatively, this can be set with the following environment variable: " + publicKeyEnvKey

	privateKeyFlagName  = "private-key"
	privateKeyEnvKey    = "PAYLOAD_PRIVATE_KEY" // nolint:gosec
	privateKeyFlagUsage = "Base64url private key of the node, required with " + publicKeyFlagName + "." +
		" Alternatively, this can be set with the following environment variable: " + privateKeyEnvKey

	// peer flag.
	peerFlagName      = "peer"
	peerEnvKey        = "PAYLOAD_PEER"
	peerFlagShorthand = "p"
	peerFlagUsage     = "Node serving a recipient. Values should be in `key@url` format." +
		" This flag can be repeated, allowing for multiple peers." +
		" Alternatively, this can be set with the following environment variable (in CSV format): " + peerEnvKey

	pushTimeoutFlagName  = "push-timeout"
	pushTimeoutEnvKey    = "PAYLOAD_PUSH_TIMEOUT"
	pushTimeoutFlagUsage = "Timeout of a single push request to a peer, as a duration. Default: " +
		pushTimeoutDefault + "." +
		" Alternatively, this can be set with the following environment variable: " + pushTimeoutEnvKey
	pushTimeoutDefault = "10s"

	cacheSizeFlagName  = "cache-size"
	cacheSizeEnvKey    = "PAYLOAD_CACHE_SIZE"
	cacheSizeFlagUsage = "Number of decoded payloads kept in memory. 0 disables the cache. Default: 100." +
		" Alternatively, this can be set with the following environment variable: " + cacheSizeEnvKey

	tlsCertFileFlagName      = "tls-cert-file"
	tlsCertFileEnvKey        = "TLS_CERT_FILE"
	tlsCertFileFlagShorthand = "c"
	tlsCertFileFlagUsage     = "tls certificate file." +
		" Alternatively, this can be set with the following environment variable: " + tlsCertFileEnvKey

	tlsKeyFileFlagName      = "tls-key-file"
	tlsKeyFileEnvKey        = "TLS_KEY_FILE"
	tlsKeyFileFlagShorthand = "k"
	tlsKeyFileFlagUsage     = "tls key file." +
		" Alternatively, this can be set with the following environment variable: " + tlsKeyFileEnvKey

	databaseTypeMemOption     = "mem"
	databaseTypeLevelDBOption = "leveldb"
)

var (
	errMissingHost = errors.New("host not provided")
	logger         = log.New("aries-payload/rest")
)

type nodeParameters struct {
	server                  server
	host, token             string
	tlsCertFile, tlsKeyFile string
	publicKey, privateKey   string
	peers                   []string
	pushTimeout             time.Duration
	cacheSize               *int
	dbParam                 *dbParam
}

type dbParam struct {
	dbType  string
	url     string
	prefix  string
	timeout uint64
}

// nolint:gochecknoglobals
var supportedStorageProviders = map[string]func(url, prefix string) (storage.Provider, error){
	databaseTypeMemOption: func(_, _ string) (storage.Provider, error) { // nolint:unparam
		return mem.NewProvider(), nil
	},
	databaseTypeLevelDBOption: func(path, prefix string) (storage.Provider, error) { // nolint:unparam
		return leveldb.NewProvider(filepath.Join(path, prefix)), nil
	},
}

type server interface {
	ListenAndServe(host string, router http.Handler, certFile, keyFile string) error
}

// HTTPServer represents an actual server implementation.
type HTTPServer struct{}

// ListenAndServe starts the server using the standard Go HTTP server implementation.
func (s *HTTPServer) ListenAndServe(host string, router http.Handler, certFile, keyFile string) error {
	if certFile != "" && keyFile != "" {
		return http.ListenAndServeTLS(host, certFile, keyFile, router)
	}

	return http.ListenAndServe(host, router) // nolint:gosec
}

// Cmd returns the Cobra start command.
func Cmd(server server) (*cobra.Command, error) {
	startCmd := createStartCMD(server)

	createFlags(startCmd)

	return startCmd, nil
}

func createStartCMD(server server) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start a payload node",
		Long:  `Start a payload node serving the encrypted payload REST API`,
		RunE: func(cmd *cobra.Command, args []string) error {
			parameters, err := getNodeParameters(cmd)
			if err != nil {
				return err
			}

			parameters.server = server

			return startNode(parameters)
		},
	}
}

func getNodeParameters(cmd *cobra.Command) (*nodeParameters, error) { // nolint:funlen,gocyclo
	logLevel, err := getUserSetVar(cmd, logLevelFlagName, logLevelEnvKey, true)
	if err != nil {
		return nil, err
	}

	err = setLogLevel(logLevel)
	if err != nil {
		return nil, err
	}

	host, err := getUserSetVar(cmd, hostFlagName, hostEnvKey, false)
	if err != nil {
		return nil, err
	}

	token, err := getUserSetVar(cmd, tokenFlagName, tokenEnvKey, true)
	if err != nil {
		return nil, err
	}

	dbParam, err := getDBParam(cmd)
	if err != nil {
		return nil, err
	}

	publicKey, err := getUserSetVar(cmd, publicKeyFlagName, publicKeyEnvKey, true)
	if err != nil {
		return nil, err
	}

	privateKey, err := getUserSetVar(cmd, privateKeyFlagName, privateKeyEnvKey, true)
	if err != nil {
		return nil, err
	}

	peers, err := getUserSetVars(cmd, peerFlagName, peerEnvKey, true)
	if err != nil {
		return nil, err
	}

	pushTimeout, err := getPushTimeout(cmd)
	if err != nil {
		return nil, err
	}

	cacheSize, err := getCacheSize(cmd)
	if err != nil {
		return nil, err
	}

	tlsCertFile, err := getUserSetVar(cmd, tlsCertFileFlagName, tlsCertFileEnvKey, true)
	if err != nil {
		return nil, err
	}

	tlsKeyFile, err := getUserSetVar(cmd, tlsKeyFileFlagName, tlsKeyFileEnvKey, true)
	if err != nil {
		return nil, err
	}

	return &nodeParameters{
		host:        host,
		token:       token,
		dbParam:     dbParam,
		publicKey:   publicKey,
		privateKey:  privateKey,
		peers:       peers,
		pushTimeout: pushTimeout,
		cacheSize:   cacheSize,
		tlsCertFile: tlsCertFile,
		tlsKeyFile:  tlsKeyFile,
	}, nil
}

func getDBParam(cmd *cobra.Command) (*dbParam, error) {
	dbParam := &dbParam{}

	var err error

	dbParam.dbType, err = getUserSetVar(cmd, databaseTypeFlagName, databaseTypeEnvKey, false)
	if err != nil {
		return nil, err
	}

	dbParam.url, err = getUserSetVar(cmd, databaseURLFlagName, databaseURLEnvKey, true)
	if err != nil {
		return nil, err
	}

	dbParam.prefix, err = getUserSetVar(cmd, databasePrefixFlagName, databasePrefixEnvKey, true)
	if err != nil {
		return nil, err
	}

	dbTimeout, err := getUserSetVar(cmd, databaseTimeoutFlagName, databaseTimeoutEnvKey, true)
	if err != nil {
		return nil, err
	}

	if dbTimeout == "" || dbTimeout == "0" {
		dbTimeout = databaseTimeoutDefault
	}

	t, err := strconv.Atoi(dbTimeout)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse db timeout %s", dbTimeout)
	}

	dbParam.timeout = uint64(t)

	return dbParam, nil
}

func getPushTimeout(cmd *cobra.Command) (time.Duration, error) {
	v, err := getUserSetVar(cmd, pushTimeoutFlagName, pushTimeoutEnvKey, true)
	if err != nil {
		return 0, err
	}

	if v == "" {
		v = pushTimeoutDefault
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to parse push timeout %s", v)
	}

	return d, nil
}

func getCacheSize(cmd *cobra.Command) (*int, error) {
	v, err := getUserSetVar(cmd, cacheSizeFlagName, cacheSizeEnvKey, true)
	if err != nil {
		return nil, err
	}

	if v == "" {
		return nil, nil // nolint:nilnil
	}

	size, err := strconv.Atoi(v)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse cache size %s", v)
	}

	return &size, nil
}

func createFlags(startCmd *cobra.Command) {
	// api host flag
	startCmd.Flags().StringP(hostFlagName, hostFlagShorthand, "", hostFlagUsage)

	// api token flag
	startCmd.Flags().StringP(tokenFlagName, tokenFlagShorthand, "", tokenFlagUsage)

	// db type
	startCmd.Flags().StringP(databaseTypeFlagName, databaseTypeFlagShorthand, "", databaseTypeFlagUsage)

	// db url
	startCmd.Flags().StringP(databaseURLFlagName, databaseURLFlagShorthand, "", databaseURLFlagUsage)

	// db prefix
	startCmd.Flags().StringP(databasePrefixFlagName, databasePrefixFlagShorthand, "", databasePrefixFlagUsage)

	// db timeout
	startCmd.Flags().StringP(databaseTimeoutFlagName, "", "", databaseTimeoutFlagUsage)

	// log level
	startCmd.Flags().StringP(logLevelFlagName, "", "", logLevelFlagUsage)

	// node key
	startCmd.Flags().StringP(publicKeyFlagName, "", "", publicKeyFlagUsage)
	startCmd.Flags().StringP(privateKeyFlagName, "", "", privateKeyFlagUsage)

	// peers
	startCmd.Flags().StringSliceP(peerFlagName, peerFlagShorthand, []string{}, peerFlagUsage)

	startCmd.Flags().StringP(pushTimeoutFlagName, "", "", pushTimeoutFlagUsage)

	startCmd.Flags().StringP(cacheSizeFlagName, "", "", cacheSizeFlagUsage)

	// tls cert file
	startCmd.Flags().StringP(tlsCertFileFlagName, tlsCertFileFlagShorthand, "", tlsCertFileFlagUsage)

	// tls key file
	startCmd.Flags().StringP(tlsKeyFileFlagName, tlsKeyFileFlagShorthand, "", tlsKeyFileFlagUsage)
}

func getUserSetVar(cmd *cobra.Command, flagName, envKey string, isOptional bool) (string, error) {
	if cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetString(flagName)
		if err != nil {
			return "", fmt.Errorf(flagName+" flag not found: %s", err)
		}

		return value, nil
	}

	value, isSet := os.LookupEnv(envKey)

	if isOptional || isSet {
		return value, nil
	}

	return "", errors.New("Neither " + flagName + " (command line flag) nor " + envKey +
		" (environment variable) have been set.")
}

func getUserSetVars(cmd *cobra.Command, flagName, envKey string, isOptional bool) ([]string, error) {
	if cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetStringSlice(flagName)
		if err != nil {
			return nil, fmt.Errorf(flagName+" flag not found: %s", err)
		}

		return value, nil
	}

	value, isSet := os.LookupEnv(envKey)

	var values []string

	if isSet {
		values = strings.Split(value, ",")
	}

	if isOptional || isSet {
		return values, nil
	}

	return nil, fmt.Errorf(" %s not set. "+
		"It must be set via either command line or environment variable", flagName)
}

func setLogLevel(logLevel string) error {
	if logLevel != "" {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return errors.Wrapf(err, "failed to parse log level '%s'", logLevel)
		}

		log.SetLevel("", level)

		logger.Infof("logger level set to %s", logLevel)
	}

	return nil
}

func validateAuthorizationBearerToken(w http.ResponseWriter, r *http.Request, token string) bool {
	actHdr := r.Header.Get("Authorization")
	expHdr := "Bearer " + token

	if subtle.ConstantTimeCompare([]byte(actHdr), []byte(expHdr)) != 1 {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("Unauthorised.\n")) // nolint:gosec,errcheck

		return false
	}

	return true
}

// authorizationMiddleware checks the bearer token on every route except the node to node push endpoint.
func authorizationMiddleware(token string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == push.Path || validateAuthorizationBearerToken(w, r, token) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

func startNode(parameters *nodeParameters) error {
	if parameters.host == "" {
		return errMissingHost
	}

	handler, err := createHandler(parameters)
	if err != nil {
		return err
	}

	logger.Infof("Starting payload node rest on host [%s]", parameters.host)

	err = parameters.server.ListenAndServe(parameters.host, handler, parameters.tlsCertFile, parameters.tlsKeyFile)
	if err != nil {
		return errors.Wrapf(err, "failed to start payload node rest on port [%s]", parameters.host)
	}

	return nil
}

func createHandler(parameters *nodeParameters) (http.Handler, error) {
	ctx, err := createContext(parameters)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to start payload node rest on port [%s]", parameters.host)
	}

	// get all HTTP REST API handlers available for controller API
	handlers, err := controller.GetRESTHandlers(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to start payload node rest on port [%s], failed to get rest service api",
			parameters.host)
	}

	router := mux.NewRouter()
	router.Use(rest.RequestID)

	if parameters.token != "" {
		router.Use(authorizationMiddleware(parameters.token))
	}

	for _, handler := range handlers {
		router.HandleFunc(handler.Path(), handler.Handle()).Methods(handler.Method())
	}

	return cors.New(
		cors.Options{
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodHead},
			AllowedHeaders: []string{
				"Origin", "Accept", "Content-Type", "X-Requested-With", "Authorization", rest.RequestIDHeader,
			},
			ExposedHeaders: []string{rest.RequestIDHeader},
		},
	).Handler(router), nil
}

func createContext(parameters *nodeParameters) (*context.Provider, error) {
	storePro, err := createStoreProvider(parameters)
	if err != nil {
		return nil, err
	}

	opts := []context.ProviderOption{context.WithStorageProvider(storePro)}

	if parameters.cacheSize != nil {
		opts = append(opts, context.WithCacheSize(*parameters.cacheSize))
	}

	kp, err := nodeKey(parameters.publicKey, parameters.privateKey)
	if err != nil {
		return nil, err
	}

	if kp != nil {
		opts = append(opts, context.WithNodeKey(kp))
	}

	dir, err := push.ParseDirectory(parameters.peers)
	if err != nil {
		return nil, errors.Wrap(err, "invalid peers")
	}

	opts = append(opts, context.WithPeers(dir, push.WithHTTPClient(&http.Client{Timeout: parameters.pushTimeout})))

	ctx, err := context.New(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize node context")
	}

	logger.Infof("node key [%s]", ctx.NodeKey().RecipientKey())

	return ctx, nil
}

// nodeKey decodes the configured node key pair. Both keys empty means a key pair is generated.
func nodeKey(publicKey, privateKey string) (*sodium.KeyPair, error) {
	if publicKey == "" && privateKey == "" {
		return nil, nil // nolint:nilnil
	}

	if publicKey == "" || privateKey == "" {
		return nil, errors.Errorf("both %s and %s must be set", publicKeyFlagName, privateKeyFlagName)
	}

	pub, err := base64.RawURLEncoding.DecodeString(publicKey)
	if err != nil {
		return nil, errors.Wrap(err, "invalid public key")
	}

	priv, err := base64.RawURLEncoding.DecodeString(privateKey)
	if err != nil {
		return nil, errors.Wrap(err, "invalid private key")
	}

	kp, err := sodium.KeyPairFromBytes(pub, priv)
	if err != nil {
		return nil, errors.Wrap(err, "invalid node key pair")
	}

	return kp, nil
}

func createStoreProvider(parameters *nodeParameters) (storage.Provider, error) {
	provider, supported := supportedStorageProviders[parameters.dbParam.dbType]
	if !supported {
		return nil, errors.New("database type not set to a valid type." +
			" run start --help to see the available options")
	}

	var store storage.Provider

	err := backoff.RetryNotify(
		func() error {
			var openErr error
			store, openErr = provider(parameters.dbParam.url, parameters.dbParam.prefix)
			return openErr
		},
		backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), parameters.dbParam.timeout),
		func(retryErr error, t time.Duration) {
			logger.Warnf(
				"failed to connect to storage, will sleep for %s before trying again : %s\n",
				t, retryErr)
		},
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to storage at %s", parameters.dbParam.url)
	}

	return store, nil
}
