package parser

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/manojsingh/agent-skills/database"
)

func src(path, content string) database.SourceFile {
	return database.SourceFile{Path: path, Content: []byte(content)}
}

func parse(t *testing.T, files ...database.SourceFile) *Result {
	t.Helper()
	return NewParser(nil).ParseSources(files)
}

func entity(t *testing.T, res *Result, name string) database.Entity {
	t.Helper()
	for _, e := range res.Entities {
		if e.Name == name {
			return e
		}
	}
	require.Failf(t, "entity not found", "%s", name)
	return database.Entity{}
}

func fieldNames(e database.Entity) []string {
	var names []string
	for _, f := range e.Fields {
		names = append(names, f.Name)
	}
	return names
}

const productSource = `using System.ComponentModel.DataAnnotations;
using Microsoft.EntityFrameworkCore;

namespace Shop.Models
{
    // A product for sale.
    public class Product
    {
        [Required]
        public string Name { get; set; } = string.Empty;

        [Precision(10, 2)]
        public decimal Price { get; set; }
    }
}
`

func TestParseScalarEntity(t *testing.T) {
	res := parse(t, src("Product.cs", productSource))
	require.Len(t, res.Entities, 1)
	require.Empty(t, res.Skipped)

	p := res.Entities[0]
	require.Equal(t, "Product", p.Name)
	require.Equal(t, "Shop.Models", p.Namespace)
	require.Equal(t, []string{"Name", "Price"}, fieldNames(p))

	name := p.Fields[0]
	require.Equal(t, "string", name.SourceType)
	require.True(t, name.IsRequired())
	require.False(t, name.IsNullable())

	prec, scale, ok := p.Fields[1].Precision()
	require.True(t, ok)
	require.Equal(t, 10, prec)
	require.Equal(t, 2, scale)
	require.Empty(t, p.Relationships)
}

func TestParseOneToMany(t *testing.T) {
	res := parse(t,
		src("Category.cs", `namespace Shop;
public class Category
{
    public int Id { get; set; }
    public string Name { get; set; }
    public ICollection<Product> Products { get; set; } = new List<Product>();
}`),
		src("Product.cs", `namespace Shop;
public class Product
{
    public int Id { get; set; }
    public int CategoryId { get; set; }
    public virtual Category Category { get; set; } = null!;
}`),
	)
	require.Len(t, res.Entities, 2)

	category := entity(t, res, "Category")
	require.Equal(t, []string{"Id", "Name"}, fieldNames(category))
	require.Len(t, category.Relationships, 1)
	require.Equal(t, database.OneToMany, category.Relationships[0].Kind)
	require.Equal(t, "Product", category.Relationships[0].Target)
	require.Equal(t, "Category", category.Relationships[0].Inverse)

	product := entity(t, res, "Product")
	require.Equal(t, []string{"Id"}, fieldNames(product), "foreign key scalar is absorbed")
	require.Len(t, product.Relationships, 1)
	r := product.Relationships[0]
	require.Equal(t, database.ManyToOne, r.Kind)
	require.Equal(t, "Category", r.Target)
	require.Equal(t, "Products", r.Inverse)
	require.NotNil(t, r.ForeignKey)
	require.Equal(t, "CategoryId", r.ForeignKey.Name)
	require.False(t, r.Nullable)
}

func TestParseManyToManyOncePerPair(t *testing.T) {
	res := parse(t,
		src("Student.cs", `public class Student
{
    public int Id { get; set; }
    public List<Course> Courses { get; set; }
}`),
		src("Course.cs", `public class Course
{
    public int Id { get; set; }
    public ICollection<Student> Students { get; set; }
}`),
	)

	student := entity(t, res, "Student")
	course := entity(t, res, "Course")
	require.Len(t, student.Relationships, 1)
	require.Len(t, course.Relationships, 1)
	require.Equal(t, database.ManyToMany, student.Relationships[0].Kind)
	require.Equal(t, database.ManyToMany, course.Relationships[0].Kind)
	require.Equal(t, "Students", student.Relationships[0].Inverse)
	require.Equal(t, "Courses", course.Relationships[0].Inverse)
	require.Empty(t, student.RelationshipsOf(database.OneToMany))
}

func TestParseExplicitJoinTable(t *testing.T) {
	res := parse(t,
		src("Models.cs", `public class Student
{
    public int Id { get; set; }
    public List<Course> Courses { get; set; }
}
public class Course
{
    public int Id { get; set; }
    public List<Student> Students { get; set; }
}`),
		src("SchoolContext.cs", `public class SchoolContext : DbContext
{
    public DbSet<Student> Students { get; set; }

    protected override void OnModelCreating(ModelBuilder modelBuilder)
    {
        modelBuilder.Entity<Student>()
            .HasMany(s => s.Courses)
            .WithMany(c => c.Students)
            .UsingEntity(j => j.ToTable("enrollments"));
    }
}`),
	)

	require.Len(t, res.Entities, 2, "the context is not an entity")
	require.Equal(t, "enrollments", entity(t, res, "Course").Relationships[0].JoinTable)
	require.Equal(t, "enrollments", entity(t, res, "Student").Relationships[0].JoinTable)
}

func TestParseFaultIsolation(t *testing.T) {
	res := parse(t,
		src("A.cs", `public class Alpha { public int Id { get; set; } }`),
		src("Broken.cs", "public class Broken\n{\n    public int Id { get; set; }\n"),
		src("C.cs", `public class Gamma { public int Id { get; set; } }`),
	)

	require.Len(t, res.Entities, 2)
	require.Len(t, res.Skipped, 1)
	require.Equal(t, "Broken.cs", res.Skipped[0].Path)
	require.Contains(t, res.Skipped[0].Reason, "line 2")
	require.Len(t, res.Warnings(), 1)
	require.Contains(t, res.Warnings()[0], "Broken.cs")
}

func TestParseFileUnbalanced(t *testing.T) {
	_, err := NewParser(nil).ParseFile(src("x.cs", "public class X { } }"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnbalancedBraces))
}

func TestParseBracesInLiteralsAndComments(t *testing.T) {
	res := parse(t, src("Template.cs", `public class Template
{
    public int Id { get; set; }
    // closing } in a comment
    /* { */
    public string Open { get; set; } = "{";
    public string Path { get; set; } = @"C:\{dir}";
    public char Brace { get; set; } = '}';
}`))

	require.Empty(t, res.Skipped)
	require.Equal(t, []string{"Id", "Open", "Path", "Brace"}, fieldNames(entity(t, res, "Template")))
}

func TestParseDuplicateKeepsFirst(t *testing.T) {
	res := parse(t,
		src("a/Product.cs", `public class Product { public int Id { get; set; } public string Name { get; set; } }`),
		src("b/Product.cs", `public class Product { public int Id { get; set; } }`),
	)

	require.Len(t, res.Entities, 1)
	require.Equal(t, "a/Product.cs", res.Entities[0].SourcePath)
	require.Len(t, res.Entities[0].Fields, 2)
	require.Equal(t, []Duplicate{{Name: "Product", Path: "b/Product.cs", FirstPath: "a/Product.cs"}}, res.Duplicates)
}

func TestParseMembers(t *testing.T) {
	res := parse(t, src("Order.cs", `namespace Shop
{
    public abstract class BaseEntity
    {
        public int Id { get; set; }
        public DateTime CreatedAt { get; set; }
    }

    public enum Status { Open, Closed }

    [Table("orders", Schema = "sales")]
    public class Order : BaseEntity
    {
        public const int MaxLines = 10;
        public static string Prefix = "ORD";
        private string secret;

        [Column("order_no"), MaxLength(20)]
        public string Number { get; set; }

        public int? Quantity { get; set; }
        public Nullable<decimal> Discount { get; set; }
        public Status Status { get; set; }

        [NotMapped]
        public string Display => Number;

        [NotMapped]
        public string Computed { get; set; }

        public string Label => "order";

        public Order() { }

        public void Close() { Status = Status.Closed; }

        public class Line { public int Id { get; set; } }
    }
}`))

	require.Len(t, res.Entities, 1, "abstract bases and nested types are not entities")
	order := res.Entities[0]
	require.Equal(t, "orders", order.TableName)
	require.Equal(t, "sales", order.Schema)
	require.Equal(t, "orders", order.Table())
	require.Equal(t, []string{"Id", "CreatedAt", "Number", "Quantity", "Discount", "Status"}, fieldNames(order))

	require.True(t, order.Fields[0].PrimaryKey)

	number := order.Fields[2]
	require.Equal(t, "order_no", number.ColumnName())
	n, ok := number.MaxLength()
	require.True(t, ok)
	require.Equal(t, 20, n)

	require.True(t, order.Fields[3].Nullable)
	require.Equal(t, "int", order.Fields[3].SourceType)
	require.True(t, order.Fields[4].Nullable)
	require.Equal(t, "decimal", order.Fields[4].SourceType)
	require.Equal(t, "Status", order.Fields[5].SourceType)
}

func TestParseKeyConventions(t *testing.T) {
	res := parse(t,
		src("Keys.cs", `public class Badge
{
    [Key]
    public Guid Code { get; set; }
    public int Id { get; set; }
}
public class Invoice
{
    public int InvoiceId { get; set; }
}
public record Tag
{
    public int Id { get; init; }
    public required string Label { get; init; }
}`),
	)

	badge := entity(t, res, "Badge")
	require.True(t, badge.Fields[0].PrimaryKey)
	require.False(t, badge.Fields[1].PrimaryKey)

	require.True(t, entity(t, res, "Invoice").Fields[0].PrimaryKey)

	tag := entity(t, res, "Tag")
	require.Equal(t, []string{"Id", "Label"}, fieldNames(tag))
	require.True(t, tag.Fields[0].PrimaryKey)
}

func TestParseCompositeKeyJoinEntity(t *testing.T) {
	res := parse(t, src("Enrollment.cs", `public class Student { public int Id { get; set; } public List<Enrollment> Enrollments { get; set; } }
public class Course { public int Id { get; set; } }
[PrimaryKey(nameof(StudentId), nameof(CourseId))]
public class Enrollment
{
    public int StudentId { get; set; }
    public int CourseId { get; set; }
    public Student Student { get; set; }
    public Course Course { get; set; }
    public DateTime EnrolledOn { get; set; }
}`))

	enrollment := entity(t, res, "Enrollment")
	require.Equal(t, []string{"EnrolledOn"}, fieldNames(enrollment))
	require.Len(t, enrollment.Relationships, 2)
	for _, r := range enrollment.Relationships {
		require.Equal(t, database.ManyToOne, r.Kind)
		require.NotNil(t, r.ForeignKey)
		require.True(t, r.ForeignKey.PrimaryKey)
	}
	require.True(t, enrollment.HasPrimaryKey())
	require.True(t, enrollment.CompositeKey())
	require.Equal(t, "Student", entity(t, res, "Student").Relationships[0].Inverse)
}

func TestParseForeignKeyAttribute(t *testing.T) {
	res := parse(t, src("Post.cs", `public class Author { public int Id { get; set; } }
public class Post
{
    public int Id { get; set; }
    public int? WrittenBy { get; set; }

    [ForeignKey("WrittenBy")]
    public Author Writer { get; set; }
}`))

	post := entity(t, res, "Post")
	require.Equal(t, []string{"Id"}, fieldNames(post))
	r := post.Relationships[0]
	require.Equal(t, "WrittenBy", r.ForeignKey.Name)
	require.True(t, r.Nullable)
	require.Equal(t, "written_by", r.ForeignKeyColumn())
}

func TestParseSelfReference(t *testing.T) {
	res := parse(t, src("Employee.cs", `public class Employee
{
    public int Id { get; set; }
    public int? ManagerId { get; set; }
    public Employee Manager { get; set; }
    public ICollection<Employee> Reports { get; set; }
}`))

	e := entity(t, res, "Employee")
	require.Len(t, e.Relationships, 2)
	require.Equal(t, database.ManyToOne, e.Relationships[0].Kind)
	require.Equal(t, "Reports", e.Relationships[0].Inverse)
	require.Equal(t, database.OneToMany, e.Relationships[1].Kind)
	require.Equal(t, "Manager", e.Relationships[1].Inverse)
}

func TestParseSharedPrimaryKey(t *testing.T) {
	res := parse(t, src("Profile.cs", `public class User { public int Id { get; set; } public string Name { get; set; } }
public class Profile
{
    [Key]
    public int UserId { get; set; }
    public string Bio { get; set; }
    public User User { get; set; }
}`))

	profile := entity(t, res, "Profile")
	require.Equal(t, []string{"Bio"}, fieldNames(profile))
	require.Len(t, profile.Relationships, 1)

	r := profile.Relationships[0]
	require.Equal(t, database.ManyToOne, r.Kind)
	require.NotNil(t, r.ForeignKey)
	require.Equal(t, "UserId", r.ForeignKey.Name)
	require.True(t, r.ForeignKey.PrimaryKey)
	require.False(t, r.Nullable)
	require.Equal(t, "user_id", profile.KeyColumn())

	shared, ok := profile.SharedKey()
	require.True(t, ok)
	require.Equal(t, "User", shared.Property)
}

func TestParseSelfReferenceKeepsSoleKey(t *testing.T) {
	res := parse(t, src("Node.cs", `public class Node
{
    public int NodeId { get; set; }
    public Node Node2 { get; set; }
}`))

	node := entity(t, res, "Node")
	require.Equal(t, []string{"NodeId"}, fieldNames(node))
	require.Nil(t, node.Relationships[0].ForeignKey)
	require.Equal(t, "Node2Id", node.Relationships[0].KeyName)
}

func TestParseSynthesizedKeyAvoidsTakenNames(t *testing.T) {
	res := parse(t, src("Post.cs", `public class User { public int Id { get; set; } }
public class Post
{
    public int Id { get; set; }
    public int AuthorId { get; set; }

    [ForeignKey("AuthorId")]
    public User Writer { get; set; }
    public User Author { get; set; }
}`))

	post := entity(t, res, "Post")
	require.Equal(t, []string{"Id"}, fieldNames(post))
	require.Equal(t, "AuthorId", post.Relationships[0].ForeignKey.Name)
	require.Nil(t, post.Relationships[1].ForeignKey)
	require.Equal(t, "AuthorId2", post.Relationships[1].KeyName)
	require.NotEqual(t, post.Relationships[0].ForeignKeyColumn(), post.Relationships[1].ForeignKeyColumn())
}

func TestParseTwoManyToManyPairs(t *testing.T) {
	res := parse(t,
		src("Models.cs", `public class Student
{
    public int Id { get; set; }
    public List<Course> Courses { get; set; }
    public List<Course> Teaching { get; set; }
}
public class Course
{
    public int Id { get; set; }
    public List<Student> Students { get; set; }
    public List<Student> Teachers { get; set; }
}`),
		src("SchoolContext.cs", `public class SchoolContext : DbContext
{
    protected override void OnModelCreating(ModelBuilder b)
    {
        b.Entity<Course>().HasMany(c => c.Teachers).WithMany(s => s.Teaching).UsingEntity(j => j.ToTable("course_teacher"));
    }
}`),
	)

	student := entity(t, res, "Student")
	require.Len(t, student.RelationshipsOf(database.ManyToMany), 2)
	require.Equal(t, "Students", student.Relationships[0].Inverse)
	require.Empty(t, student.Relationships[0].JoinTable)
	require.Equal(t, "Teachers", student.Relationships[1].Inverse)
	require.Equal(t, "course_teacher", student.Relationships[1].JoinTable)
}

func TestParseMultipleDeclarators(t *testing.T) {
	res := parse(t, src("Point.cs", `public class Point
{
    public int Id { get; set; }
    [Required]
    public int X, Y;
    public double Scale = 1.0, Offset = 0.5;
}`))

	point := entity(t, res, "Point")
	require.Equal(t, []string{"Id", "X", "Y", "Scale", "Offset"}, fieldNames(point))
	require.True(t, point.Fields[2].IsRequired())
	require.Equal(t, "double", point.Fields[4].SourceType)
}
