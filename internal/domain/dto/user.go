package dto

type SignUp struct {
	Name       string   `validate:"required,min=2,max=100"`
	StudentID  string   `validate:"required,max=30"`
	Email      string   `validate:"required,email,emaildomain"`
	Department string   `validate:"required,max=100"`
	Year       string   `validate:"required,max=20"`
	Password   string   `validate:"required,min=6,max=72"`
	Interests  []string `validate:"dive,max=40"`
}
