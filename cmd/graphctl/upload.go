package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/paper-pigeon/backend/internal/storage"
	"github.com/paper-pigeon/backend/internal/util"
	"github.com/paper-pigeon/backend/pkg/artifact"
)

type filePutter interface {
	PutFile(ctx context.Context, key string, body io.ReadSeeker, contentType string) error
}

func newUploadCommand() *cobra.Command {
	var path, bucket, key string

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a locally built artifact to S3",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := storage.NewAWSConfig(cmd.Context())
			if err != nil {
				return err
			}
			client := storage.NewS3Client(cfg)
			if bucket != "" {
				client.Bucket = bucket
			}
			if client.Bucket == "" {
				return fmt.Errorf("no bucket: pass --bucket or set S3_BUCKET_NAME")
			}

			size, err := uploadArtifact(cmd.Context(), client, path, key)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%d bytes) to s3://%s/%s\n", path, size, client.Bucket, key)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", util.GetEnvString("GRAPH_CACHE_PATH", "cache/"+artifact.DefaultName), "local artifact to upload")
	cmd.Flags().StringVar(&bucket, "bucket", util.GetEnv("GRAPH_CACHE_S3_BUCKET"), "target bucket, defaults to S3_BUCKET_NAME")
	cmd.Flags().StringVar(&key, "key", util.FirstEnv("GRAPH_CACHE_S3_KEY", "CACHE_KEY"), "target object key")
	return cmd
}

// uploadArtifact validates the file as a graph artifact before it is put, so
// a truncated or foreign file never replaces the served one.
func uploadArtifact(ctx context.Context, dst filePutter, path, key string) (int, error) {
	if key == "" {
		key = artifact.DefaultName
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return 0, fmt.Errorf("read artifact: %w", err)
	}
	if _, err := artifact.Decode(data); err != nil {
		return 0, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewind artifact: %w", err)
	}

	if err := dst.PutFile(ctx, key, f, "application/json"); err != nil {
		return 0, err
	}
	return len(data), nil
}
