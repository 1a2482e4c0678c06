package ws

type Hubs struct {
	Proctor *ProctorHub
	Student *StudentHub
}

func NewHubs() *Hubs {
	return &Hubs{
		Proctor: NewProctorHub(),
		Student: NewStudentHub(),
	}
}
