//go:build gomock || generate

package dcbench

//go:generate sh -c "go run go.uber.org/mock/mockgen -build_flags=\"-tags=gomock\" -package dcbench -destination mock_transport_test.go github.com/quic-go/dcbench/transport Transport"
