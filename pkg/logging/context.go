package logging

import (
	"context"
)

type contextKey string

const (
	tenantIDKey    contextKey = "tenant_id"
	messageIDKey   contextKey = "message_id"
	streamKey      contextKey = "stream"
	serviceNameKey contextKey = "service_name"
)

func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, messageIDKey, messageID)
}

func WithStream(ctx context.Context, stream string) context.Context {
	return context.WithValue(ctx, streamKey, stream)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, serviceNameKey, serviceName)
}

func GetTenantID(ctx context.Context) string {
	return stringValue(ctx, tenantIDKey)
}

func GetMessageID(ctx context.Context) string {
	return stringValue(ctx, messageIDKey)
}

func GetStream(ctx context.Context) string {
	return stringValue(ctx, streamKey)
}

func GetServiceName(ctx context.Context) string {
	return stringValue(ctx, serviceNameKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetLogFields flattens the known context values into zap key/value pairs.
func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 8)

	if tenantID := GetTenantID(ctx); tenantID != "" {
		fields = append(fields, "tenant_id", tenantID)
	}

	if messageID := GetMessageID(ctx); messageID != "" {
		fields = append(fields, "message_id", messageID)
	}

	if stream := GetStream(ctx); stream != "" {
		fields = append(fields, "stream", stream)
	}

	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, "service_name", serviceName)
	}

	return fields
}
