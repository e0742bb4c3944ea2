package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cognitoidentityprovider"
	"github.com/google/uuid"

	"github.com/brickfolio/control-plane/shared/errs"
	"github.com/brickfolio/control-plane/shared/utils"
)

// CognitoDirectory implements Directory on an AWS Cognito user pool. Owner
// accounts carry the tenant id as a custom attribute so tokens are
// self-describing for the rest of the platform.
type CognitoDirectory struct {
	client         *cognitoidentityprovider.CognitoIdentityProvider
	userPoolID     string
	circuitBreaker *utils.CircuitBreaker
}

// NewCognitoDirectory creates a directory client for the given pool.
func NewCognitoDirectory(region, userPoolID string) (*CognitoDirectory, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &CognitoDirectory{
		client:         cognitoidentityprovider.New(sess),
		userPoolID:     userPoolID,
		circuitBreaker: utils.NewCircuitBreaker(5, 30*time.Second),
	}, nil
}

// CreateOwner implements Directory. Already-existing users are returned
// rather than treated as an error, keeping the provisioning step idempotent.
func (d *CognitoDirectory) CreateOwner(ctx context.Context, email string, tenantID uuid.UUID) (string, error) {
	var sub string
	err := d.circuitBreaker.Call(func() error {
		out, err := d.client.AdminCreateUserWithContext(ctx, &cognitoidentityprovider.AdminCreateUserInput{
			UserPoolId: aws.String(d.userPoolID),
			Username:   aws.String(email),
			UserAttributes: []*cognitoidentityprovider.AttributeType{
				{Name: aws.String("email"), Value: aws.String(email)},
				{Name: aws.String("email_verified"), Value: aws.String("true")},
				{Name: aws.String("custom:tenant_id"), Value: aws.String(tenantID.String())},
				{Name: aws.String("custom:role"), Value: aws.String("tenant_owner")},
			},
			DesiredDeliveryMediums: []*string{aws.String("EMAIL")},
		})
		if err != nil {
			if aerr, ok := err.(awserr.Error); ok && aerr.Code() == cognitoidentityprovider.ErrCodeUsernameExistsException {
				return d.lookupSub(ctx, email, &sub)
			}
			return err
		}
		sub = attributeValue(out.User.Attributes, "sub")
		return nil
	})
	if err != nil {
		if err == utils.ErrCircuitOpen {
			return "", errs.Transient("user directory unavailable", err)
		}
		return "", errs.Transient("owner account creation", err)
	}
	if sub == "" {
		return "", errs.Internal("directory returned no user id", nil)
	}
	return sub, nil
}

func (d *CognitoDirectory) lookupSub(ctx context.Context, email string, sub *string) error {
	out, err := d.client.AdminGetUserWithContext(ctx, &cognitoidentityprovider.AdminGetUserInput{
		UserPoolId: aws.String(d.userPoolID),
		Username:   aws.String(email),
	})
	if err != nil {
		return err
	}
	*sub = attributeValue(out.UserAttributes, "sub")
	return nil
}

func attributeValue(attrs []*cognitoidentityprovider.AttributeType, name string) string {
	for _, attr := range attrs {
		if attr.Name != nil && *attr.Name == name && attr.Value != nil {
			return *attr.Value
		}
	}
	return ""
}
