package internal

import (
	"context"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"przelewy/config"
	"przelewy/entity"
	"przelewy/services"
)

const (
	collectionLog                 = "payment_log"
	collectionPayments            = "payments"
	collectionNotifications       = "notifications"
	collectionRefundNotifications = "refund_notifications"
)

// MongoDB is the host-side ledger: registered payments, received
// notifications and service log records. Connections are short-lived and
// opened per operation.
type MongoDB struct {
	clientOptions    *options.ClientOptions
	database         string
	logRecordsNumber int64
}

func NewMongoClient(conf *config.Config) (*MongoDB, error) {
	if !conf.Mongo.Enabled {
		return nil, nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	client := &MongoDB{
		clientOptions:    clientOptions,
		database:         conf.Mongo.Database,
		logRecordsNumber: conf.LogRecords,
	}
	return client, nil
}

func (m *MongoDB) connect(ctx context.Context) (*mongo.Client, error) {
	connection, err := mongo.Connect(ctx, m.clientOptions)
	if err != nil {
		return nil, err
	}
	return connection, nil
}

func (m *MongoDB) disconnect(ctx context.Context, connection *mongo.Client) {
	err := connection.Disconnect(ctx)
	if err != nil {
		log.Println("mongodb disconnect error", err)
	}
}

func (m *MongoDB) SavePayment(ctx context.Context, payment *entity.Payment) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{Key: "session_id", Value: payment.SessionID}}
	set := bson.M{"$set": payment}
	collection := connection.Database(m.database).Collection(collectionPayments)
	_, err = collection.UpdateOne(ctx, filter, set, options.Update().SetUpsert(true))
	return err
}

func (m *MongoDB) GetPayment(ctx context.Context, sessionID string) (*entity.Payment, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{Key: "session_id", Value: sessionID}}
	collection := connection.Database(m.database).Collection(collectionPayments)
	var payment entity.Payment
	if err = collection.FindOne(ctx, filter).Decode(&payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (m *MongoDB) UpdatePayment(ctx context.Context, payment *entity.Payment) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionPayments)
	filter := bson.D{{Key: "session_id", Value: payment.SessionID}}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "order_id", Value: payment.OrderID},
			{Key: "status", Value: payment.Status},
			{Key: "verified", Value: payment.Verified},
			{Key: "refunded_amount", Value: payment.RefundedAmount},
			{Key: "last_error", Value: payment.LastError},
			{Key: "time_updated", Value: payment.TimeUpdated},
		}},
	}
	if _, err = collection.UpdateOne(ctx, filter, update); err != nil {
		return err
	}
	return nil
}

func (m *MongoDB) SaveNotification(ctx context.Context, notification *entity.Notification) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionNotifications)
	_, err = collection.InsertOne(ctx, notification)
	return err
}

func (m *MongoDB) SaveRefundNotification(ctx context.Context, notification *entity.RefundNotification) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionRefundNotifications)
	_, err = collection.InsertOne(ctx, notification)
	return err
}

// WriteLogMessage stores a log record. When log_records is set, the oldest
// records beyond the cap are removed.
func (m *MongoDB) WriteLogMessage(data services.Data) error {
	ctx := context.Background()
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionLog)
	if _, err = collection.InsertOne(ctx, data); err != nil {
		return err
	}
	if m.logRecordsNumber <= 0 {
		return nil
	}
	count, err := collection.CountDocuments(ctx, bson.D{})
	if err != nil || count <= m.logRecordsNumber {
		return err
	}
	cursor, err := collection.Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "time", Value: 1}}).SetLimit(count-m.logRecordsNumber))
	if err != nil {
		return err
	}
	var ids []interface{}
	for cursor.Next(ctx) {
		var record struct {
			ID interface{} `bson:"_id"`
		}
		if err = cursor.Decode(&record); err != nil {
			continue
		}
		ids = append(ids, record.ID)
	}
	_ = cursor.Close(ctx)
	if len(ids) == 0 {
		return nil
	}
	_, err = collection.DeleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	return err
}
