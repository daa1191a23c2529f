package searchindex

import (
	"context"
	"fmt"
	"time"

	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// BootstrapWeaviate ensures the document class exists. Vectors come from the
// embedding backend, so the class has no vectorizer of its own.
func BootstrapWeaviate(ctx context.Context, baseURL string) error {
	cfg := weaviate.Config{Scheme: "http", Host: baseURL}
	cl, err := weaviate.NewClient(cfg)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	doc := &models.Class{
		Class:      documentClass,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "docId", DataType: []string{"text"}},
			{Name: "docType", DataType: []string{"text"}},
			{Name: "title", DataType: []string{"text"}},
			{Name: "excerpt", DataType: []string{"text"}},
			{Name: "category", DataType: []string{"text"}},
			{Name: "publishedAt", DataType: []string{"date"}},
		},
	}

	if err := ensureClass(cctx, cl, doc); err != nil {
		return fmt.Errorf("bootstrap %s: %w", documentClass, err)
	}
	return nil
}

func ensureClass(ctx context.Context, cl *weaviate.Client, desired *models.Class) error {
	ex, err := cl.Schema().ClassGetter().WithClassName(desired.Class).Do(ctx)
	if err == nil && ex != nil {
		return nil
	}
	if err := cl.Schema().ClassCreator().WithClass(desired).Do(ctx); err != nil {
		return fmt.Errorf("create class %s: %w", desired.Class, err)
	}
	return nil
}
