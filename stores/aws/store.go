package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mdcollab/core"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"
)

// s3Store keeps users, documents, and version history as JSON objects:
// users/{id}.json, documents/{id}.json, versions/{documentID}.json.
type s3Store struct {
	s3Client *s3.Client
	bucket   string
}

// NewStore creates a new S3-based store.
func NewStore(bucketName string) *s3Store {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	return &s3Store{
		s3Client: s3.NewFromConfig(cfg),
		bucket:   bucketName,
	}
}

func objectKey(prefix, id string) (string, error) {
	// Sanitize the id to prevent key traversal; it must be a simple name.
	if id == "" || id == "." || id == ".." || path.Base(id) != id {
		return "", fmt.Errorf("invalid id %q", id)
	}
	return path.Join(prefix, id+".json"), nil
}

func (s *s3Store) getObject(ctx context.Context, key string, out any) error {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return core.ErrNotFound
		}
		return fmt.Errorf("failed to get object %s: %v", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read object %s: %v", key, err)
	}
	return json.Unmarshal(data, out)
}

func (s *s3Store) putObject(ctx context.Context, key string, in any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %v", key, err)
	}
	return nil
}

// storedUserRecord re-adds the password hash, which core.User never
// serializes.
type storedUserRecord struct {
	core.User
	PasswordHash string `json:"passwordHash"`
}

// UserStore implementation

func (s *s3Store) GetUser(ctx context.Context, id string) (*core.User, error) {
	key, err := objectKey("users", id)
	if err != nil {
		return nil, err
	}
	var record storedUserRecord
	if err := s.getObject(ctx, key, &record); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("user with id %s: %w", id, core.ErrNotFound)
		}
		return nil, err
	}
	user := record.User
	user.PasswordHash = record.PasswordHash
	return &user, nil
}

func (s *s3Store) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	output, err := s.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String("users/"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %v", err)
	}

	for _, object := range output.Contents {
		var record storedUserRecord
		if err := s.getObject(ctx, *object.Key, &record); err != nil {
			log.Printf("warn: failed to read user object %s: %v", *object.Key, err)
			continue
		}
		if record.Email == email {
			user := record.User
			user.PasswordHash = record.PasswordHash
			return &user, nil
		}
	}
	return nil, fmt.Errorf("user with email %s: %w", email, core.ErrNotFound)
}

func (s *s3Store) CreateUser(ctx context.Context, user *core.User) (*core.User, error) {
	now := time.Now()
	created := *user
	created.ID = ulid.Make().String()
	created.CreatedAt = now
	created.UpdatedAt = now

	key, err := objectKey("users", created.ID)
	if err != nil {
		return nil, err
	}
	record := storedUserRecord{User: created, PasswordHash: created.PasswordHash}
	if err := s.putObject(ctx, key, record); err != nil {
		return nil, err
	}
	return &created, nil
}

// DocumentStore implementation

func (s *s3Store) GetDocument(ctx context.Context, id string) (*core.Document, error) {
	key, err := objectKey("documents", id)
	if err != nil {
		return nil, err
	}
	var document core.Document
	if err := s.getObject(ctx, key, &document); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("document with id %s: %w", id, core.ErrNotFound)
		}
		return nil, err
	}
	return &document, nil
}

func (s *s3Store) ListDocumentsByUser(ctx context.Context, userID string) ([]*core.Document, error) {
	output, err := s.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String("documents/"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %v", err)
	}

	documents := make([]*core.Document, 0)
	for _, object := range output.Contents {
		var document core.Document
		if err := s.getObject(ctx, *object.Key, &document); err != nil {
			log.Printf("warn: failed to read document object %s: %v", *object.Key, err)
			continue
		}
		if document.UserID == userID {
			doc := document
			documents = append(documents, &doc)
		}
	}
	return documents, nil
}

func (s *s3Store) CreateDocument(ctx context.Context, document *core.Document) (*core.Document, error) {
	now := time.Now()
	created := *document
	created.ID = ulid.Make().String()
	created.CreatedAt = now
	created.UpdatedAt = now
	created.LastSyncedAt = nil

	key, err := objectKey("documents", created.ID)
	if err != nil {
		return nil, err
	}
	if err := s.putObject(ctx, key, created); err != nil {
		return nil, err
	}
	if err := s.appendVersion(ctx, created.ID, created.Content, created.UserID); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *s3Store) UpdateDocument(ctx context.Context, id string, patch core.DocumentPatch) (*core.Document, error) {
	document, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		document.Title = *patch.Title
	}
	if patch.Content != nil {
		document.Content = *patch.Content
	}
	if patch.IsPublic != nil {
		document.IsPublic = *patch.IsPublic
	}
	if patch.LastSyncedAt != nil {
		document.LastSyncedAt = patch.LastSyncedAt
	}
	document.UpdatedAt = time.Now()

	key, err := objectKey("documents", id)
	if err != nil {
		return nil, err
	}
	if err := s.putObject(ctx, key, document); err != nil {
		return nil, err
	}
	if patch.Content != nil {
		if err := s.appendVersion(ctx, id, *patch.Content, document.UserID); err != nil {
			return nil, err
		}
	}
	return document, nil
}

func (s *s3Store) DeleteDocument(ctx context.Context, id string) error {
	key, err := objectKey("documents", id)
	if err != nil {
		return err
	}
	if _, err := s.GetDocument(ctx, id); err != nil {
		return err
	}
	if _, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("failed to delete document %s: %v", id, err)
	}

	versionsKey, err := objectKey("versions", id)
	if err != nil {
		return err
	}
	if _, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(versionsKey),
	}); err != nil {
		return fmt.Errorf("failed to delete versions for %s: %v", id, err)
	}
	return nil
}

func (s *s3Store) GetDocumentVersions(ctx context.Context, documentID string) ([]*core.DocumentVersion, error) {
	stored, err := s.readVersions(ctx, documentID)
	if err != nil {
		return nil, err
	}
	versions := make([]*core.DocumentVersion, 0, len(stored))
	for _, version := range stored {
		version := version
		versions = append(versions, &version)
	}
	return versions, nil
}

func (s *s3Store) readVersions(ctx context.Context, documentID string) ([]core.DocumentVersion, error) {
	key, err := objectKey("versions", documentID)
	if err != nil {
		return nil, err
	}
	var versions []core.DocumentVersion
	if err := s.getObject(ctx, key, &versions); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return versions, nil
}

func (s *s3Store) appendVersion(ctx context.Context, documentID, content, createdBy string) error {
	versions, err := s.readVersions(ctx, documentID)
	if err != nil {
		return err
	}
	versions = append(versions, core.DocumentVersion{
		ID:         ulid.Make().String(),
		DocumentID: documentID,
		Content:    content,
		Version:    len(versions) + 1,
		CreatedBy:  createdBy,
		CreatedAt:  time.Now(),
	})

	key, err := objectKey("versions", documentID)
	if err != nil {
		return err
	}
	return s.putObject(ctx, key, versions)
}
