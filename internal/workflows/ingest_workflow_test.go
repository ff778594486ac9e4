package workflows

import (
	"context"
	"errors"
	"testing"

	"ragkit/internal/activities"
	"ragkit/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func registerDocumentActivities(env *testsuite.TestWorkflowEnvironment) {
	registerActivityName(env, "ComputeDocumentIDActivity", func(context.Context, activities.ComputeDocumentIDInput) (activities.ComputeDocumentIDOutput, error) {
		return activities.ComputeDocumentIDOutput{}, nil
	})
	registerActivityName(env, "ExtractTextActivity", func(context.Context, activities.ExtractTextInput) (activities.ExtractTextOutput, error) {
		return activities.ExtractTextOutput{}, nil
	})
	registerActivityName(env, "ChunkTextActivity", func(context.Context, activities.ChunkTextInput) (activities.ChunkTextOutput, error) {
		return activities.ChunkTextOutput{}, nil
	})
	registerActivityName(env, "EmbedChunksActivity", func(context.Context, activities.EmbedChunksInput) (activities.EmbedChunksOutput, error) {
		return activities.EmbedChunksOutput{}, nil
	})
	registerActivityName(env, "UpsertChunksActivity", func(context.Context, activities.UpsertChunksInput) (activities.UpsertChunksOutput, error) {
		return activities.UpsertChunksOutput{}, nil
	})
}

func TestDocumentIngestWorkflowSuccess(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerDocumentActivities(env)

	env.OnActivity("ComputeDocumentIDActivity", mock.Anything, activities.ComputeDocumentIDInput{FilePath: "/tmp/doc.txt"}).
		Return(activities.ComputeDocumentIDOutput{DocumentID: "abc123", Filename: "doc.txt"}, nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, activities.ExtractTextInput{FilePath: "/tmp/doc.txt"}).
		Return(activities.ExtractTextOutput{MediaType: "txt", Text: "hello world"}, nil)
	env.OnActivity("ChunkTextActivity", mock.Anything, mock.Anything).
		Return(activities.ChunkTextOutput{Chunks: []models.Chunk{{DocumentID: "abc123", ChunkID: "abc123:0", Text: "hello world"}}}, nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.Anything).
		Return(activities.EmbedChunksOutput{Vectors: [][]float32{{0.1, 0.2}}, ProviderName: "mock", Model: "mock"}, nil)
	env.OnActivity("UpsertChunksActivity", mock.Anything, mock.Anything).
		Return(activities.UpsertChunksOutput{Upserted: 1}, nil)

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{BatchID: "b", FilePath: "/tmp/doc.txt", EmbedProviders: 1})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "processed", out)
}

func TestDocumentIngestWorkflowUnsupportedFileFailsGracefully(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerDocumentActivities(env)

	env.OnActivity("ComputeDocumentIDActivity", mock.Anything, mock.Anything).
		Return(activities.ComputeDocumentIDOutput{DocumentID: "abc123"}, nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, mock.Anything).
		Return(activities.ExtractTextOutput{}, errors.New("unsupported file type: doc.zip"))

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{BatchID: "b", FilePath: "/tmp/doc.zip", EmbedProviders: 1})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out)
}

func TestDocumentIngestWorkflowEmbedFailover(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerDocumentActivities(env)

	env.OnActivity("ComputeDocumentIDActivity", mock.Anything, mock.Anything).
		Return(activities.ComputeDocumentIDOutput{DocumentID: "abc123"}, nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, mock.Anything).
		Return(activities.ExtractTextOutput{MediaType: "txt", Text: "hello"}, nil)
	env.OnActivity("ChunkTextActivity", mock.Anything, mock.Anything).
		Return(activities.ChunkTextOutput{Chunks: []models.Chunk{{ChunkID: "abc123:0", Text: "hello"}}}, nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, activities.EmbedChunksInput{Operation: "document", Inputs: []string{"hello"}, ProviderIndex: 0}).
		Return(activities.EmbedChunksOutput{}, errors.New("quota exhausted"))
	env.OnActivity("EmbedChunksActivity", mock.Anything, activities.EmbedChunksInput{Operation: "document", Inputs: []string{"hello"}, ProviderIndex: 1}).
		Return(activities.EmbedChunksOutput{Vectors: [][]float32{{0.3}}, ProviderName: "ollama"}, nil)
	env.OnActivity("UpsertChunksActivity", mock.Anything, mock.Anything).
		Return(activities.UpsertChunksOutput{Upserted: 1}, nil)

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{BatchID: "b", FilePath: "/tmp/doc.txt", EmbedProviders: 2})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "processed", out)
}

func TestBatchIngestWorkflowAggregatesChildren(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(BatchIngestWorkflow)
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerActivityName(env, "ListFilesActivity", func(context.Context, activities.ListFilesInput) (activities.ListFilesOutput, error) {
		return activities.ListFilesOutput{}, nil
	})
	registerDocumentActivities(env)

	env.OnActivity("ListFilesActivity", mock.Anything, activities.ListFilesInput{InputDir: "/tmp/in"}).
		Return(activities.ListFilesOutput{Paths: []string{"/tmp/in/a.txt", "/tmp/in/b.txt"}}, nil)
	env.OnActivity("ComputeDocumentIDActivity", mock.Anything, mock.Anything).
		Return(activities.ComputeDocumentIDOutput{DocumentID: "abc123"}, nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, mock.Anything).
		Return(activities.ExtractTextOutput{MediaType: "txt", Text: "hello"}, nil)
	env.OnActivity("ChunkTextActivity", mock.Anything, mock.Anything).
		Return(activities.ChunkTextOutput{Chunks: []models.Chunk{{ChunkID: "abc123:0", Text: "hello"}}}, nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.Anything).
		Return(activities.EmbedChunksOutput{Vectors: [][]float32{{0.1}}, ProviderName: "mock"}, nil)
	env.OnActivity("UpsertChunksActivity", mock.Anything, mock.Anything).
		Return(activities.UpsertChunksOutput{Upserted: 1}, nil)

	env.ExecuteWorkflow(BatchIngestWorkflow, BatchIngestInput{BatchID: "b", InputDir: "/tmp/in", MaxConcurrentChildren: 2, EmbedProviders: 1})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "completed", out)

	v, err := env.QueryWorkflow(QueryGetBatchProgress)
	require.NoError(t, err)
	var progress BatchIngestProgress
	require.NoError(t, v.Get(&progress))
	require.Equal(t, 2, progress.Total)
	require.Equal(t, 2, progress.Done)
	require.Zero(t, progress.Failed)
}
