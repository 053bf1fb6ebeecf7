package store

import (
	"context"
	"time"

	"PPresence/module/message/model"
	"PPresence/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(model.MessageCollection)}
}

// EnsureIndexes 会话查询和未读更新都按 (sender, receiver, created_at)
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "is_read", Value: 1}}},
	})
	return errs.WrapMsg(err, "create message indexes")
}

func (s *MongoStore) Save(ctx context.Context, m *model.Message) error {
	_, err := s.coll.InsertOne(ctx, m)
	return errs.WrapMsg(err, "insert message", "id", m.ID)
}

func (s *MongoStore) Conversation(ctx context.Context, a, b int64, limit int) ([]*model.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender_id": a, "receiver_id": b},
		bson.M{"sender_id": b, "receiver_id": a},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errs.WrapMsg(err, "find conversation", "a", a, "b", b)
	}
	var out []*model.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.WrapMsg(err, "decode conversation")
	}
	// 倒序查出来，翻转成正序
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *MongoStore) MarkRead(ctx context.Context, receiverID, senderID int64) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"sender_id": senderID, "receiver_id": receiverID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "updated_at": time.Now()}},
	)
	if err != nil {
		return 0, errs.WrapMsg(err, "mark read", "receiver", receiverID, "sender", senderID)
	}
	return res.ModifiedCount, nil
}

// LastMessages 按会话对象分组取最新一条
func (s *MongoStore) LastMessages(ctx context.Context, userID int64) ([]*model.Message, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"sender_id": userID},
			bson.M{"receiver_id": userID},
		}}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}}}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$sender_id", userID}}, "$receiver_id", "$sender_id",
			}},
			"doc": bson.M{"$first": "$$ROOT"},
		}}},
		{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$doc"}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}}}},
	}
	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errs.WrapMsg(err, "aggregate last messages", "user", userID)
	}
	var out []*model.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.WrapMsg(err, "decode last messages")
	}
	return out, nil
}

func (s *MongoStore) UnreadCount(ctx context.Context, receiverID, senderID int64) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"sender_id": senderID, "receiver_id": receiverID, "is_read": false})
	if err != nil {
		return 0, errs.WrapMsg(err, "count unread", "receiver", receiverID, "sender", senderID)
	}
	return n, nil
}
