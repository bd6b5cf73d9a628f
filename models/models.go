package models

type User struct {
	ID       int64
	Username string
	Password string // hashed
}

type FriendEdge struct {
	ID     int64
	Owner  string
	Friend string
}

type OfflineMessage struct {
	ID        int64
	Addressee string
	Body      string
}
