// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/workshophub/internal/app/reconcile"
	membershipstore "github.com/dalemusser/workshophub/internal/app/store/memberships"
	"github.com/dalemusser/workshophub/internal/app/store/mergeoutbox"
	"github.com/dalemusser/workshophub/internal/app/system/ratelimit"
	"github.com/dalemusser/workshophub/internal/app/system/tasks"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database and back-end dependencies for the app.
// ConnectDB builds everything here; Startup and BuildHandler only wire it.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	Engine      *reconcile.Engine
	Memberships *membershipstore.Store
	MergeOutbox *mergeoutbox.Store
	Tasks       *tasks.Runner
	OpsLimiter  *ratelimit.OpsLimiter
}
