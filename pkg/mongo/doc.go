// Package mongo opens the MongoDB client used by audit.MongoStorage when
// AUDIT_BACKEND=mongo.
//
//	client, db, err := mongo.NewWithDatabase(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Disconnect(context.Background())
//
//	storage := audit.NewMongoStorage(db)
//	if err := storage.EnsureIndexes(ctx); err != nil {
//		return err
//	}
package mongo
