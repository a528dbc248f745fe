package config

type Config struct {
	// DBDsn подключение к PostgreSQL. Пустая строка - хранилище в памяти
	DBDsn string
	// MachineID автомат, создаваемый в хранилище в памяти
	MachineID string
}
