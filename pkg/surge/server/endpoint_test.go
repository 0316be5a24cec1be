package server

import (
	"bufio"
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/surge/pkg/surge/http1"
	"github.com/yourusername/surge/pkg/surge/router"
)

func testService(t *testing.T) *Service {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return NewService(log)
}

func openTestEndpoint(t *testing.T, svc *Service, handler http1.Pipeline) *Endpoint {
	t.Helper()
	e, err := NewEndpoint(svc, "127.0.0.1", 0)
	require.NoError(t, err)

	h := router.NewHost("127.0.0.1")
	dr, err := router.NewRoute("default", "", http1.MethodAll, handler)
	require.NoError(t, err)
	h.AddRoute(dr)
	e.AddHost(h)

	require.NoError(t, e.Open(context.Background()))
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func echoHandler() HandlerFunc {
	return func(c *http1.Conn) (int, []byte) {
		var body []byte
		for {
			pkt := c.ReadPacket()
			if pkt == nil {
				break
			}
			if !pkt.Last() {
				body = append(body, pkt.Data()...)
			}
			pkt.Release()
		}
		return http1.StatusOK, append([]byte(c.Rx.Method+" "+c.Rx.PathInfo+" "), body...)
	}
}

// readResponse consumes one framed response from the stream.
func readResponse(t *testing.T, br *bufio.Reader) (status int, body string) {
	t.Helper()
	statusLine, err := br.ReadString('\n')
	require.NoError(t, err)
	parts := strings.SplitN(strings.TrimRight(statusLine, "\r\n"), " ", 3)
	require.GreaterOrEqual(t, len(parts), 2, "bad status line %q", statusLine)
	status, err = strconv.Atoi(parts[1])
	require.NoError(t, err)

	length := 0
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if k, v, ok := strings.Cut(line, ":"); ok && strings.EqualFold(strings.TrimSpace(k), "content-length") {
			length, err = strconv.Atoi(strings.TrimSpace(v))
			require.NoError(t, err)
		}
	}
	buf := make([]byte, length)
	_, err = io.ReadFull(br, buf)
	require.NoError(t, err)
	return status, string(buf)
}

func TestEndpointServesRequest(t *testing.T) {
	svc := testService(t)
	e := openTestEndpoint(t, svc, echoHandler())

	conn, err := net.Dial("tcp", e.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET /hello HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)

	status, body := readResponse(t, bufio.NewReader(conn))
	assert.Equal(t, 200, status)
	assert.Equal(t, "GET /hello ", body)
}

func TestEndpointServesPipelinedRequests(t *testing.T) {
	svc := testService(t)
	e := openTestEndpoint(t, svc, echoHandler())

	conn, err := net.Dial("tcp", e.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(
		"GET /one HTTP/1.1\r\nHost: x\r\n\r\n" +
			"POST /two HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\nhello"))
	require.NoError(t, err)

	br := bufio.NewReader(conn)
	status, body := readResponse(t, br)
	assert.Equal(t, 200, status)
	assert.Equal(t, "GET /one ", body)

	status, body = readResponse(t, br)
	assert.Equal(t, 200, status)
	assert.Equal(t, "POST /two hello", body)
}

func TestEndpointRejectsBadRequest(t *testing.T) {
	svc := testService(t)
	e := openTestEndpoint(t, svc, echoHandler())

	conn, err := net.Dial("tcp", e.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("FROB / HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)

	status, _ := readResponse(t, bufio.NewReader(conn))
	assert.Equal(t, 400, status)
}

func TestEndpointAddressSplit(t *testing.T) {
	svc := testService(t)
	e, err := NewEndpoint(svc, "127.0.0.1:9090", -1)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", e.IP)
	assert.Equal(t, 9090, e.Port)

	_, err = NewEndpoint(svc, "127.0.0.1:notaport", -1)
	assert.Error(t, err)
}

func TestLookupEndpoint(t *testing.T) {
	svc := testService(t)
	a, err := NewEndpoint(svc, "10.0.0.1", 8080)
	require.NoError(t, err)
	b, err := NewEndpoint(svc, "", 9090)
	require.NoError(t, err)

	assert.Same(t, a, svc.LookupEndpoint("10.0.0.1", 8080))
	// The all-interfaces endpoint matches any ip on its port.
	assert.Same(t, b, svc.LookupEndpoint("192.168.1.1", 9090))
	assert.Nil(t, svc.LookupEndpoint("10.0.0.2", 8080))
}

// Wildcard virtual hosting: "*.example.com" wins for matching names, the
// bare "*" host catches the rest.
func TestNamedVirtualHostLookup(t *testing.T) {
	svc := testService(t)
	e, err := NewEndpoint(svc, "127.0.0.1", 0)
	require.NoError(t, err)
	e.NamedVirtualHosts = true

	wild := router.NewHost("*.example.com")
	all := router.NewHost("*")
	e.AddHost(wild)
	e.AddHost(all)

	assert.Same(t, wild, e.LookupHost("svc.example.com"))
	assert.Same(t, all, e.LookupHost("other"))
	// Empty header falls back to the first host.
	assert.Same(t, wild, e.LookupHost(""))
}

func TestUnnamedEndpointAlwaysFirstHost(t *testing.T) {
	svc := testService(t)
	e, err := NewEndpoint(svc, "127.0.0.1", 0)
	require.NoError(t, err)

	first := router.NewHost("first")
	second := router.NewHost("second")
	e.AddHost(first)
	e.AddHost(second)

	assert.Same(t, first, e.LookupHost("second"))
}

func TestVirtualHostMissReturns404(t *testing.T) {
	svc := testService(t)
	e, err := NewEndpoint(svc, "127.0.0.1", 0)
	require.NoError(t, err)
	e.NamedVirtualHosts = true

	h := router.NewHost("only.example.com")
	dr, err := router.NewRoute("default", "", http1.MethodAll, echoHandler())
	require.NoError(t, err)
	h.AddRoute(dr)
	e.AddHost(h)

	require.NoError(t, e.Open(context.Background()))
	t.Cleanup(func() { _ = e.Close() })

	conn, err := net.Dial("tcp", e.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET / HTTP/1.1\r\nHost: unknown.org\r\n\r\n"))
	require.NoError(t, err)

	status, _ := readResponse(t, bufio.NewReader(conn))
	assert.Equal(t, 404, status)
}

func TestEndpointOpenRequiresHost(t *testing.T) {
	svc := testService(t)
	e, err := NewEndpoint(svc, "127.0.0.1", 0)
	require.NoError(t, err)
	assert.Error(t, e.Open(context.Background()))
}

func TestShutdownTearsDownConnections(t *testing.T) {
	svc := testService(t)
	e := openTestEndpoint(t, svc, echoHandler())

	conn, err := net.Dial("tcp", e.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	// Exchange one request so the connection is registered and idle.
	_, err = conn.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)
	readResponse(t, bufio.NewReader(conn))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))

	assert.Eventually(t, func() bool {
		return svc.Connections() == 0
	}, 2*time.Second, 10*time.Millisecond, "connections survived shutdown")
}
