package repository

import (
	"sort"
	"sync"

	"gt06gateway/internal/core/model"
)

type inMemoryCommandRepository struct {
	commands map[string]*model.PendingCommand
	mutex    sync.RWMutex
}

func NewInMemoryCommandRepository() CommandRepository {
	return &inMemoryCommandRepository{
		commands: make(map[string]*model.PendingCommand),
	}
}

func (r *inMemoryCommandRepository) Save(cmd *model.PendingCommand) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	c := *cmd
	r.commands[cmd.IMEI] = &c
	return nil
}

func (r *inMemoryCommandRepository) Delete(imei string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.commands, imei)
	return nil
}

func (r *inMemoryCommandRepository) FindByIMEI(imei string) (*model.PendingCommand, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if cmd, exists := r.commands[imei]; exists {
		c := *cmd
		return &c, nil
	}
	return nil, nil
}

func (r *inMemoryCommandRepository) FindAll() ([]*model.PendingCommand, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	cmds := make([]*model.PendingCommand, 0, len(r.commands))
	for _, cmd := range r.commands {
		c := *cmd
		cmds = append(cmds, &c)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].IMEI < cmds[j].IMEI })
	return cmds, nil
}
