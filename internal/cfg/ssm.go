package cfg

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/linnemanlabs-seed/internal/xerrors"
)

// SSMAPI is the subset of the SSM client used to read secrets.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ResolveDatabaseURL returns DatabaseURL when set, otherwise the decrypted
// value of DatabaseSSMParam.
func ResolveDatabaseURL(ctx context.Context, c App, client SSMAPI) (string, error) {
	if c.DatabaseURL != "" {
		return c.DatabaseURL, nil
	}
	if c.DatabaseSSMParam == "" {
		return "", xerrors.New("no database url configured")
	}
	if client == nil {
		return "", xerrors.Newf("ssm client required to read %s", c.DatabaseSSMParam)
	}

	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(c.DatabaseSSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", c.DatabaseSSMParam)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", c.DatabaseSSMParam)
	}
	dsn := strings.TrimSpace(*out.Parameter.Value)
	if dsn == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", c.DatabaseSSMParam)
	}
	return dsn, nil
}
