package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
	"github.com/epam/syndicate-rule-engine-sub000/internal/secretstore"
)

type fakeSecrets struct {
	data map[string][]byte
}

func newFakeSecrets() *fakeSecrets { return &fakeSecrets{data: map[string][]byte{}} }

func (f *fakeSecrets) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := f.data[key]
	if !ok {
		return nil, secretstore.ErrNotFound
	}
	return v, nil
}

func (f *fakeSecrets) Put(_ context.Context, key string, data []byte) error {
	f.data[key] = data
	return nil
}

func (f *fakeSecrets) Delete(_ context.Context, key string) error {
	delete(f.data, key)
	return nil
}

func (f *fakeSecrets) Take(ctx context.Context, key string) ([]byte, error) {
	v, err := f.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	_ = f.Delete(ctx, key)
	return v, nil
}

type fakeParentLinks struct {
	link  *ParentLink
	calls int
}

func (f *fakeParentLinks) ParentLink(context.Context, model.Tenant) (*ParentLink, error) {
	f.calls++
	return f.link, nil
}

type fakeManagement struct {
	link  *ParentLink
	calls int
}

func (f *fakeManagement) ManagementCreds(context.Context, model.Tenant) (*ParentLink, error) {
	f.calls++
	return f.link, nil
}

type fakeAmbient struct {
	principal string
	calls     int
}

func (f *fakeAmbient) PrincipalID(context.Context, model.Cloud) (string, error) {
	f.calls++
	return f.principal, nil
}

type fakeAWSMaterializer struct{ calls int }

func (f *fakeAWSMaterializer) AssumeRole(_ context.Context, roleARN, _ string) (AWSStatic, error) {
	f.calls++
	return AWSStatic{AccessKeyID: "assumed-" + roleARN, SecretAccessKey: "secret", Region: "us-east-1"}, nil
}

func TestResolveJobScopedTakesPrecedence(t *testing.T) {
	secrets := newFakeSecrets()
	payload, _ := json.Marshal(EphemeralPayload{
		Cloud: model.AWS,
		AWS:   &AWSStatic{AccessKeyID: "ephemeral-key", SecretAccessKey: "ephemeral-secret"},
	})
	secrets.data[ephemeralKey("job-1")] = payload

	parentLinks := &fakeParentLinks{link: &ParentLink{Cloud: model.AWS, AWSRoleARN: "arn:aws:iam::123:role/x"}}
	r := &Resolver{Secrets: secrets, ParentLinks: parentLinks, AWS: &fakeAWSMaterializer{}}

	job := &model.Job{ID: "job-1"}
	bundle, err := r.Resolve(context.Background(), Request{Job: job, Tenant: model.Tenant{Cloud: model.AWS}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	defer bundle.Close()

	if bundle.Env["AWS_ACCESS_KEY_ID"] != "ephemeral-key" {
		t.Fatalf("env = %+v, want ephemeral key", bundle.Env)
	}
	if parentLinks.calls != 0 {
		t.Fatal("parent link should not have been consulted once ephemeral credentials were found")
	}
	if _, err := secrets.Get(context.Background(), ephemeralKey("job-1")); !errors.Is(err, secretstore.ErrNotFound) {
		t.Fatal("ephemeral secret should be single-use (deleted after Take)")
	}
}

func TestResolveFallsBackToParentLinkAssumeRole(t *testing.T) {
	aws := &fakeAWSMaterializer{}
	r := &Resolver{
		ParentLinks: &fakeParentLinks{link: &ParentLink{Cloud: model.AWS, AWSRoleARN: "arn:aws:iam::123:role/scan"}},
		AWS:         aws,
	}

	job := &model.Job{ID: "job-2"}
	bundle, err := r.Resolve(context.Background(), Request{Job: job, Tenant: model.Tenant{Cloud: model.AWS}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	defer bundle.Close()

	if bundle.Env["AWS_ACCESS_KEY_ID"] != "assumed-arn:aws:iam::123:role/scan" {
		t.Fatalf("env = %+v", bundle.Env)
	}
	if aws.calls != 1 {
		t.Fatalf("want 1 AssumeRole call, got %d", aws.calls)
	}
}

func TestResolveManagementCredsGatedByFlag(t *testing.T) {
	management := &fakeManagement{link: &ParentLink{Cloud: model.AWS, AWSRoleARN: "arn:mgmt"}}
	r := &Resolver{Management: management}

	job := &model.Job{ID: "job-3"}
	_, err := r.Resolve(context.Background(), Request{Job: job, Tenant: model.Tenant{Cloud: model.AWS}, AllowManagementCreds: false})
	if !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("err = %v, want ErrNoCredentials when management creds are not allowed", err)
	}
	if management.calls != 0 {
		t.Fatal("management creds source should not be consulted when AllowManagementCreds is false")
	}

	bundle, err := r.Resolve(context.Background(), Request{Job: job, Tenant: model.Tenant{Cloud: model.AWS}, AllowManagementCreds: true})
	if err != nil {
		t.Fatalf("Resolve with AllowManagementCreds: %v", err)
	}
	defer bundle.Close()
	if bundle.Env["AWS_ROLE_ARN"] != "arn:mgmt" {
		t.Fatalf("env = %+v", bundle.Env)
	}
}

func TestResolveAmbientMatchesProjectID(t *testing.T) {
	ambient := &fakeAmbient{principal: "123456789"}
	r := &Resolver{Ambient: ambient}

	job := &model.Job{ID: "job-4"}
	tenant := model.Tenant{Cloud: model.AWS, ProjectID: "123456789"}

	bundle, err := r.Resolve(context.Background(), Request{Job: job, Tenant: tenant})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	defer bundle.Close()
}

func TestResolveAmbientMismatchFails(t *testing.T) {
	ambient := &fakeAmbient{principal: "other-account"}
	r := &Resolver{Ambient: ambient}

	job := &model.Job{ID: "job-5"}
	tenant := model.Tenant{Cloud: model.AWS, ProjectID: "123456789"}

	_, err := r.Resolve(context.Background(), Request{Job: job, Tenant: tenant})
	if !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("err = %v, want ErrNoCredentials on principal mismatch", err)
	}
}

func TestResolveNoSourcesFails(t *testing.T) {
	r := &Resolver{}
	job := &model.Job{ID: "job-6"}
	_, err := r.Resolve(context.Background(), Request{Job: job, Tenant: model.Tenant{Cloud: model.AWS}})
	if !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("err = %v, want ErrNoCredentials", err)
	}
}

func TestBundleCloseRemovesTempFiles(t *testing.T) {
	bundle := newBundle()
	path, err := bundle.writeTempFile("test-*.pem", []byte("data"))
	if err != nil {
		t.Fatalf("writeTempFile: %v", err)
	}
	if err := bundle.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.ReadFile(path); err == nil {
		t.Fatal("expected temp file to be removed after Close")
	}
}
