// Package grpcweb serves the service to browsers as gRPC-Web with JSON
// messages. Calls are dispatched in-process through the same interceptor
// chain as the native server.
package grpcweb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"dermalink-api/internal/handler"
	"dermalink-api/internal/rpc"
)

const (
	ContentType  = "application/grpc-web+json"
	maxBodyBytes = 4 << 20

	frameData    byte = 0x00
	frameTrailer byte = 0x80
)

type Bridge struct {
	h    *handler.Handler
	icpt grpc.UnaryServerInterceptor
	log  zerolog.Logger
}

// New returns a bridge calling h through icpt, which may be nil.
func New(h *handler.Handler, icpt grpc.UnaryServerInterceptor, l zerolog.Logger) *Bridge {
	return &Bridge{h: h, icpt: icpt, log: l.With().Str("component", "grpcweb").Logger()}
}

// Handler serves POST /dermalink.v1.Dermalink/<Method>.
func (b *Bridge) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, X-Grpc-Web, X-User-Agent, Authorization, x-grpc-web")
		w.Header().Set("Access-Control-Expose-Headers",
			"Grpc-Status, Grpc-Message, grpc-status, grpc-message")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, ContentType) {
			http.Error(w, "expected "+ContentType, http.StatusUnsupportedMediaType)
			return
		}

		b.dispatch(w, r)
	})
}

func (b *Bridge) dispatch(w http.ResponseWriter, r *http.Request) {
	prefix := "/" + rpc.ServiceName + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeError(w, codes.Unimplemented, "unknown service")
		return
	}
	m, ok := rpc.Lookup(strings.TrimPrefix(r.URL.Path, prefix))
	if !ok {
		writeError(w, codes.Unimplemented, "unknown method")
		return
	}

	payload, err := readFrame(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, codes.InvalidArgument, err.Error())
		return
	}
	req := m.NewReq()
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, req); err != nil {
			writeError(w, codes.InvalidArgument, "malformed message")
			return
		}
	}

	resp, err := m.Invoke(b.h, b.callContext(r), req, b.icpt)
	if err != nil {
		st := status.Convert(err)
		writeError(w, st.Code(), st.Message())
		return
	}
	out, err := json.Marshal(resp)
	if err != nil {
		b.log.Error().Err(err).Str("method", m.Name).Msg("encode response")
		writeError(w, codes.Internal, "internal error")
		return
	}
	writeSuccess(w, out)
}

// callContext carries what the native transport would: incoming metadata
// and the peer address.
func (b *Bridge) callContext(r *http.Request) context.Context {
	md := metadata.MD{}
	if vals := r.Header.Values("Authorization"); len(vals) > 0 {
		md.Set("authorization", vals...)
	}
	if ua := r.Header.Get("X-User-Agent"); ua != "" {
		md.Set("user-agent", ua)
	}
	ctx := metadata.NewIncomingContext(r.Context(), md)
	return peer.NewContext(ctx, &peer.Peer{Addr: remoteAddr(r.RemoteAddr)})
}

type remoteAddr string

func (remoteAddr) Network() string  { return "tcp" }
func (a remoteAddr) String() string { return string(a) }

// readFrame returns the payload of the single data frame of a unary call:
// 1 flag byte, 4 byte big-endian length, message.
func readFrame(body io.Reader) ([]byte, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body failed")
	}
	if len(raw) < 5 {
		return nil, fmt.Errorf("body too short")
	}
	if raw[0] != frameData {
		return nil, fmt.Errorf("unsupported frame flag %#x", raw[0])
	}
	n := binary.BigEndian.Uint32(raw[1:5])
	if int(n)+5 > len(raw) {
		return nil, fmt.Errorf("incomplete frame")
	}
	return raw[5 : 5+n], nil
}

func frame(flag byte, data []byte) []byte {
	f := make([]byte, 5+len(data))
	f[0] = flag
	binary.BigEndian.PutUint32(f[1:5], uint32(len(data)))
	copy(f[5:], data)
	return f
}

func writeError(w http.ResponseWriter, code codes.Code, msg string) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(http.StatusOK)
	trailer := fmt.Sprintf("grpc-status:%d\r\ngrpc-message:%s\r\n", code, url.PathEscape(msg))
	_, _ = w.Write(frame(frameTrailer, []byte(trailer)))
}

func writeSuccess(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(frame(frameData, data))
	_, _ = w.Write(frame(frameTrailer, []byte("grpc-status:0\r\n")))
}
