package lambda

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
)

// HandlerFunc is the signature handed to lambda.Start
type HandlerFunc func(ctx context.Context, raw json.RawMessage) (events.APIGatewayProxyResponse, error)

// InvocationInfo identifies one invocation in the logs
type InvocationInfo struct {
	RequestID    string
	FunctionName string
}

// invocationInfo reads the Lambda context, falling back to a fresh request
// ID when running outside Lambda.
func invocationInfo(ctx context.Context) InvocationInfo {
	info := InvocationInfo{FunctionName: lambdacontext.FunctionName}
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		info.RequestID = lc.AwsRequestID
	} else {
		info.RequestID = uuid.New().String()
	}
	return info
}
