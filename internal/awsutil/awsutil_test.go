package awsutil_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/smithy-go"

	"clipwise/internal/awsutil"
)

func TestErrorCode(t *testing.T) {
	err := fmt.Errorf("start job: %w", &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "nope"})
	if got := awsutil.ErrorCode(err); got != "AccessDeniedException" {
		t.Fatalf("ErrorCode = %q", got)
	}
	if got := awsutil.ErrorCode(errors.New("plain")); got != "" {
		t.Fatalf("expected empty code, got %q", got)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "throttle", err: &smithy.GenericAPIError{Code: "ThrottlingException"}, want: true},
		{name: "provisioned", err: &smithy.GenericAPIError{Code: "ProvisionedThroughputExceededException"}, want: true},
		{name: "server fault", err: &smithy.GenericAPIError{Code: "Weird", Fault: smithy.FaultServer}, want: true},
		{name: "client fault", err: &smithy.GenericAPIError{Code: "InvalidS3ObjectException", Fault: smithy.FaultClient}, want: false},
		{name: "network", err: errors.New("connection reset"), want: true},
		{name: "canceled", err: context.Canceled, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := awsutil.IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
