package network

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/cli/go-gh/v2/pkg/api"
	"github.com/sirupsen/logrus"

	"gitlab.com/gitlab-org/runner-pool/common"
	url_helpers "gitlab.com/gitlab-org/runner-pool/helpers/url"
)

const jsonMimeType = "application/json"

var dialer = net.Dialer{
	Timeout:   30 * time.Second,
	KeepAlive: 30 * time.Second,
}

// client is the JSON transport shared by the GitLab and Gitea clients.
type client struct {
	http.Client
	platform  string
	url       *url.URL
	caFile    string
	logger    logrus.FieldLogger
	collector *APIRequestsCollector

	requester requester
}

func newClient(config *common.PlatformConfig, collector *APIRequestsCollector, logger logrus.FieldLogger) (*client, error) {
	base, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing platform url %q: %w", url_helpers.CleanURL(config.URL), err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("platform url %q: only http and https are supported", url_helpers.CleanURL(config.URL))
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	if collector == nil {
		collector = NewAPIRequestsCollector()
	}

	c := &client{
		platform:  config.Name,
		url:       base,
		caFile:    config.TLSCAFile,
		logger:    logger.WithField("platform", config.Name),
		collector: collector,
	}
	c.createTransport()

	rr := newRetryRequester(&c.Client, collector)
	rr.platform = config.Name
	rr.logger = c.logger
	c.requester = rr

	return c, nil
}

func (n *client) addTLSCA(tlsConfig *tls.Config) {
	file := n.caFile
	if file == "" {
		return
	}

	n.logger.Debugln("Trying to load", file, "...")

	data, err := os.ReadFile(file)
	if err != nil {
		n.logger.WithError(err).Errorln("Failed to load", file)
		return
	}

	pool, err := x509.SystemCertPool()
	if err != nil {
		n.logger.Warningln("Failed to load system CertPool:", err)
	}
	if pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(data) {
		n.logger.Errorln("Failed to parse PEM in", file)
		return
	}

	tlsConfig.RootCAs = pool
}

func (n *client) createTransport() {
	tlsConfig := tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	n.addTLSCA(&tlsConfig)

	n.Transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			n.logger.Debugln("Dialing:", network, addr, "...")
			return dialer.DialContext(ctx, network, addr)
		},
		TLSClientConfig:       &tlsConfig,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 1 * time.Minute,
	}
	n.Timeout = common.DefaultNetworkClientTimeout
}

func (n *client) do(
	ctx context.Context,
	uri, method string,
	request io.Reader,
	headers http.Header,
) (*http.Response, error) {
	u, err := n.url.Parse(strings.TrimPrefix(uri, "/"))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), request)
	if err != nil {
		return nil, fmt.Errorf("failed to create NewRequest: %w", err)
	}

	if headers != nil {
		req.Header = headers
	}

	req.Header.Set("User-Agent", common.AppVersion.UserAgent())
	if request != nil {
		req.Header.Set("Content-Type", jsonMimeType)
	}

	return n.requester.Do(req)
}

// doJSON sends request (when not nil) as JSON and decodes a response with
// one of the expected status codes into response. Any other status is
// returned as *ErrorResponse. The returned http.Response has its body
// already consumed; only headers and status are meant to be read.
func (n *client) doJSON(
	ctx context.Context,
	endpoint apiEndpoint,
	method, uri string,
	headers http.Header,
	request interface{},
	response interface{},
	expected ...int,
) (*http.Response, error) {
	var res *http.Response
	var err error

	n.collector.Observe(n.logger, n.platform, endpoint, func() (int, string) {
		res, err = n.doJSONRequest(ctx, method, uri, headers, request, response, expected)
		if res == nil {
			return clientError, method
		}
		return res.StatusCode, method
	})

	return res, err
}

func (n *client) doJSONRequest(
	ctx context.Context,
	method, uri string,
	headers http.Header,
	request interface{},
	response interface{},
	expected []int,
) (*http.Response, error) {
	var body io.Reader

	if request != nil {
		requestBody, err := json.Marshal(request)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request object: %w", err)
		}
		body = bytes.NewReader(requestBody)
	}

	if headers == nil {
		headers = make(http.Header)
	}
	headers.Set("Accept", jsonMimeType)

	res, err := n.do(ctx, uri, method, body, headers)
	if err != nil {
		return nil, err
	}
	defer closeResponseBody(res)

	if !slices.Contains(expected, res.StatusCode) {
		return res, newErrorResponse(res)
	}

	if response == nil || res.StatusCode == http.StatusNoContent {
		return res, nil
	}

	if err := isResponseApplicationJSON(res); err != nil {
		return res, err
	}

	if err := json.NewDecoder(res.Body).Decode(response); err != nil {
		return res, fmt.Errorf("decoding json payload: %w", err)
	}

	return res, nil
}

// ErrorResponse is returned when the platform answers with an unexpected
// status. It carries the response and the message provided by the server.
type ErrorResponse struct {
	Response *http.Response       `json:"-"`
	Message  ErrorResponseMessage `json:"message"`
}

type ErrorResponseMessage string

func newErrorResponse(res *http.Response) *ErrorResponse {
	errResp := &ErrorResponse{Response: res}

	if isResponseApplicationJSON(res) == nil {
		_ = json.NewDecoder(res.Body).Decode(errResp)
	}

	if errResp.Message == "" {
		errResp.Message = ErrorResponseMessage(res.Status)
	}

	return errResp
}

func (r *ErrorResponse) StatusCode() int {
	return r.Response.StatusCode
}

func (r *ErrorResponse) Error() string {
	statusCodeMsg := fmt.Sprintf("%d %s", r.Response.StatusCode, http.StatusText(r.Response.StatusCode))
	errMessage := statusCodeMsg
	if r.Response.Request != nil {
		reqURL := url_helpers.CleanURL(r.Response.Request.URL.String())
		errMessage = fmt.Sprintf("%v %s: %s", r.Response.Request.Method, reqURL, statusCodeMsg)
	}

	if string(r.Message) == statusCodeMsg || string(r.Message) == r.Response.Status {
		return errMessage
	}

	return fmt.Sprintf("%s (%s)", errMessage, r.Message)
}

// UnmarshalJSON accepts both a plain message and GitLab's validation error
// map of field name to messages.
func (e *ErrorResponseMessage) UnmarshalJSON(data []byte) error {
	type simple ErrorResponseMessage
	err := json.Unmarshal(data, (*simple)(e))
	if err == nil {
		return nil
	}

	var complex map[string][]interface{}
	err = json.Unmarshal(data, &complex)
	if err != nil {
		// explicitly ignore error, we can't decode this type
		return nil
	}

	keys := make([]string, 0, len(complex))
	for key := range complex {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	messages := make([]string, 0, len(complex))
	for _, key := range keys {
		values := make([]string, 0, len(complex[key]))
		for _, msg := range complex[key] {
			values = append(values, fmt.Sprintf("%v", msg))
		}
		messages = append(messages, fmt.Sprintf("%s: %s", key, strings.Join(values, "; ")))
	}

	*e = ErrorResponseMessage(strings.Join(messages, ", "))
	return nil
}

// IsNotFound reports whether err is a platform answer with status 404.
func IsNotFound(err error) bool {
	return statusCodeOf(err) == http.StatusNotFound
}

func statusCodeOf(err error) int {
	var errResp *ErrorResponse
	if errors.As(err, &errResp) {
		return errResp.StatusCode()
	}

	var httpErr *api.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}

	return 0
}

func isResponseApplicationJSON(res *http.Response) error {
	contentType := res.Header.Get("Content-Type")

	mimeType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("parsing Content-Type: %w", err)
	}

	if mimeType != jsonMimeType {
		return fmt.Errorf("server should return application/json. Got: %v", contentType)
	}

	return nil
}
