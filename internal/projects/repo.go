package projects

import "context"

// Repo persists projects.
type Repo interface {
	Insert(ctx context.Context, p Project) (int64, error)
	Update(ctx context.Context, p Project) error
	Get(ctx context.Context, id int64) (Project, error)
	// List returns projects in ascending id order.
	List(ctx context.Context) ([]Project, error)
}
