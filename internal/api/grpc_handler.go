package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"catalog-service/internal/domain"
	"catalog-service/internal/query"
)

// ProductCatalogServiceName is the fully qualified gRPC service name.
const ProductCatalogServiceName = "catalog.v1.ProductCatalog"

// ProductCatalogServer is the read API served over gRPC. Requests and responses are
// google.protobuf.Struct messages carrying the same fields as the HTTP API.
type ProductCatalogServer interface {
	ListProducts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SearchProducts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ProductCatalogServiceDesc describes catalog.v1.ProductCatalog for grpc.Server.
var ProductCatalogServiceDesc = grpc.ServiceDesc{
	ServiceName: ProductCatalogServiceName,
	HandlerType: (*ProductCatalogServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListProducts", Handler: unaryStructHandler("ListProducts", ProductCatalogServer.ListProducts)},
		{MethodName: "SearchProducts", Handler: unaryStructHandler("SearchProducts", ProductCatalogServer.SearchProducts)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "catalog/v1/catalog.proto",
}

// RegisterProductCatalogServer registers srv on s.
func RegisterProductCatalogServer(s grpc.ServiceRegistrar, srv ProductCatalogServer) {
	s.RegisterService(&ProductCatalogServiceDesc, srv)
}

type structMethod func(ProductCatalogServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unaryHandler matches the Handler field of grpc.MethodDesc.
type unaryHandler = func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error)

func unaryStructHandler(method string, call structMethod) unaryHandler {
	fullMethod := "/" + ProductCatalogServiceName + "/" + method
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ProductCatalogServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(ProductCatalogServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// GRPCHandler implements ProductCatalogServer on top of the query service.
type GRPCHandler struct {
	querier Querier
	logger  zerolog.Logger
}

var _ ProductCatalogServer = (*GRPCHandler)(nil)

// NewGRPCHandler creates a new GRPCHandler.
func NewGRPCHandler(q Querier, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		querier: q,
		logger:  logger.With().Str("component", "grpc").Logger(),
	}
}

// --- Helper: Error Mapping ---
func (s *GRPCHandler) mapQueryErrorToGrpcStatus(err error, method string) error {
	var invalid *query.InvalidParamsError
	if errors.As(err, &invalid) {
		return status.Error(codes.InvalidArgument, invalid.Error())
	}
	s.logger.Error().Err(err).Str("method", method).Msg("product query failed")
	return status.Error(codes.Internal, "Failed to retrieve products")
}

// --- Product gRPC Methods Implementation ---

func (s *GRPCHandler) ListProducts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	q, err := listQueryFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	listing, err := s.querier.List(ctx, q)
	if err != nil {
		return nil, s.mapQueryErrorToGrpcStatus(err, "ListProducts")
	}
	return s.listingToStruct(listing)
}

func (s *GRPCHandler) SearchProducts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	q, err := searchQueryFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	listing, err := s.querier.Search(ctx, q)
	if err != nil {
		return nil, s.mapQueryErrorToGrpcStatus(err, "SearchProducts")
	}
	return s.listingToStruct(listing)
}

// listingToStruct renders the HTTP JSON shape. A raw listing is wrapped as {items: [...]}
// because a Struct cannot hold a bare list. Struct numbers are doubles, so a listing
// with an integer beyond maxExactInt is refused rather than rounded.
func (s *GRPCHandler) listingToStruct(listing domain.ProductListing) (*structpb.Struct, error) {
	items := listing.Page.Items
	if listing.Raw {
		items = listing.Items
	}
	if p, found := lo.Find(items, outsideNumberRange); found {
		s.logger.Error().Str("sku", p.SKU).Msg("product value exceeds protobuf number range")
		return nil, status.Errorf(codes.OutOfRange, "Product %s has a value that cannot be represented exactly", p.SKU)
	}

	var payload interface{} = listing
	if listing.Raw {
		items := listing.Items
		if items == nil {
			items = []domain.Product{}
		}
		payload = struct {
			Items []domain.Product `json:"items"`
		}{Items: items}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode listing")
		return nil, status.Error(codes.Internal, "Failed to encode products")
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		s.logger.Error().Err(err).Msg("failed to decode listing")
		return nil, status.Error(codes.Internal, "Failed to encode products")
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to build listing struct")
		return nil, status.Error(codes.Internal, "Failed to encode products")
	}
	return out, nil
}

// --- Request Conversion ---

func listQueryFromStruct(req *structpb.Struct) (query.ListQuery, error) {
	q := query.NewListQuery()
	fields := req.GetFields()

	if v, ok := fields["page"]; ok {
		page, err := intField(v, "page")
		if err != nil {
			return q, err
		}
		q.Page = int(page)
	}
	if v, ok := fields["limit"]; ok {
		limit, err := intField(v, "limit")
		if err != nil {
			return q, err
		}
		q.Limit = int(limit)
	}
	if v, ok := fields["raw"]; ok {
		b, isBool := v.GetKind().(*structpb.Value_BoolValue)
		if !isBool {
			return q, fmt.Errorf("invalid query parameters: raw must be a boolean")
		}
		q.Raw = b.BoolValue
	}
	return q, nil
}

func searchQueryFromStruct(req *structpb.Struct) (query.SearchQuery, error) {
	lq, err := listQueryFromStruct(req)
	if err != nil {
		return query.SearchQuery{}, err
	}
	q := query.SearchQuery{ListQuery: lq}
	fields := req.GetFields()

	if q.Brand, err = stringField(fields, "brand"); err != nil {
		return q, err
	}
	if q.Color, err = stringField(fields, "color"); err != nil {
		return q, err
	}
	if q.MinPrice, err = priceField(fields, "minPrice"); err != nil {
		return q, err
	}
	if q.MaxPrice, err = priceField(fields, "maxPrice"); err != nil {
		return q, err
	}
	return q, nil
}

func priceField(fields map[string]*structpb.Value, name string) (*int64, error) {
	v, ok := fields[name]
	if !ok {
		return nil, nil
	}
	price, err := intField(v, name)
	if err != nil {
		return nil, err
	}
	return &price, nil
}

func stringField(fields map[string]*structpb.Value, name string) (*string, error) {
	v, ok := fields[name]
	if !ok {
		return nil, nil
	}
	s, isString := v.GetKind().(*structpb.Value_StringValue)
	if !isString {
		return nil, fmt.Errorf("invalid query parameters: %s must be a string", name)
	}
	if s.StringValue == "" {
		return nil, nil
	}
	return &s.StringValue, nil
}

// maxExactInt is the largest integer a float64 number value holds exactly.
const maxExactInt = 1 << 53

func outsideNumberRange(p domain.Product) bool {
	return lo.SomeBy([]int64{p.MRP, p.Price, p.Quantity}, func(v int64) bool {
		return v > maxExactInt || v < -maxExactInt
	})
}

func intField(v *structpb.Value, name string) (int64, error) {
	n, isNumber := v.GetKind().(*structpb.Value_NumberValue)
	if !isNumber || n.NumberValue != math.Trunc(n.NumberValue) || math.Abs(n.NumberValue) > maxExactInt {
		return 0, fmt.Errorf("invalid query parameters: %s must be an integer", name)
	}
	return int64(n.NumberValue), nil
}

// --- Interceptors ---

// UnaryLoggingInterceptor logs every unary call with its status code and duration.
func UnaryLoggingInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		event := logger.Info()
		if code == codes.Internal || code == codes.Unknown {
			event = logger.Error().Err(err)
		}
		event.Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("duration", time.Since(start)).
			Msg("grpc request")
		return resp, err
	}
}
