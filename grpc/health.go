package grpc

import (
	"fmt"
	"log"
	"net"

	grpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer 对外暴露标准的 gRPC 健康检查端点，供部署环境探活。
type HealthServer struct {
	addr   string
	server *grpc.Server
	health *health.Server
}

// NewHealthServer 创建新的健康检查服务，addr 为监听地址 (如 ":9090")。
func NewHealthServer(addr string) *HealthServer {
	return &HealthServer{addr: addr}
}

// Start 在后台启动 gRPC 服务并将状态置为 SERVING。
func (h *HealthServer) Start() error {
	lis, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.addr, err)
	}

	h.server = grpc.NewServer()
	h.health = health.NewServer()
	healthpb.RegisterHealthServer(h.server, h.health)
	h.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		if err := h.server.Serve(lis); err != nil {
			log.Printf("Health server stopped: %v", err)
		}
	}()

	log.Printf("gRPC health server listening on %s", h.addr)
	return nil
}

// SetServing 更新健康状态，网关断线时可置为 NOT_SERVING。
func (h *HealthServer) SetServing(serving bool) {
	if h.health == nil {
		return
	}
	status := healthpb.HealthCheckResponse_SERVING
	if !serving {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus("", status)
}

// Stop 优雅地关闭 gRPC 服务。
func (h *HealthServer) Stop() {
	if h.server != nil {
		h.server.GracefulStop()
	}
}
