package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ListFilesActivity)
	w.RegisterActivity(a.ComputeDocumentIDActivity)
	w.RegisterActivity(a.ExtractTextActivity)
	w.RegisterActivity(a.ChunkTextActivity)
	w.RegisterActivity(a.EmbedChunksActivity)
	w.RegisterActivity(a.UpsertChunksActivity)
}
