package generator

import (
	"github.com/manojsingh/agent-skills/database"
)

// dialect is one target ORM. Each variant supplies its own templates.
type dialect struct {
	label        string
	render       func(c *catalog, e *database.Entity) string
	support      func(c *catalog) []File
	reserved     map[string]struct{}
	instructions []instruction
}

// instruction is one post-generation step of the guide
type instruction struct {
	title   string
	lang    string
	snippet string
}

var dialects = map[database.Dialect]dialect{
	database.SQLAlchemy: {
		label:   "SQLAlchemy (declarative table)",
		render:  renderSQLAlchemy,
		support: sqlalchemySupport,
		reserved: map[string]struct{}{
			"__init__.py": {}, "base.py": {}, "associations.py": {},
		},
		instructions: []instruction{
			{"Install Alembic", "bash", "pip install sqlalchemy alembic"},
			{"Initialize Alembic", "bash", "alembic init alembic"},
			{"Configure Alembic: edit `alembic/env.py` and import the models", "python", "from models import Base\ntarget_metadata = Base.metadata"},
			{"Generate the migration", "bash", "alembic revision --autogenerate -m \"Initial migration from .NET\""},
			{"Apply the migration", "bash", "alembic upgrade head"},
		},
	},
	database.Django: {
		label:   "Django ORM (active record)",
		render:  renderDjango,
		support: djangoSupport,
		reserved: map[string]struct{}{
			"__init__.py": {},
		},
		instructions: []instruction{
			{"Copy the generated package into your Django app", "bash", "cp -r <output>/ your_app/models/"},
			{"Generate migrations", "bash", "python manage.py makemigrations"},
			{"Apply migrations", "bash", "python manage.py migrate"},
		},
	},
}
